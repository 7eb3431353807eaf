package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed は閉じられたフィードへの購読要求で返される。
var ErrClosed = errors.New("realtime feed is closed")

// subscriptionBuffer は購読者ごとのバッファ長。
// 溢れた通知は捨てる（受信側は再計算の契機としてのみ使うため）。
const subscriptionBuffer = 16

// Hub はプロセス内で通知を購読者へ配る。
// PostgresFeedとRedisFeedはそれぞれHubを1つ持ち、受信した通知をPublishする。
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe はチャネルの購読を開始する。
func (h *Hub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	s := &Subscription{
		channel: channel,
		events:  make(chan Event, subscriptionBuffer),
		done:    make(chan struct{}),
		hub:     h,
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Subscription]struct{})
	}
	h.subs[channel][s] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Publish は通知を該当チャネルの全購読者へ配る。ブロックしない。
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[e.Channel] {
		select {
		case s.events <- e:
		default:
		}
	}
}

// Broadcast は全チャネルの購読者へ再同期イベントを配る。
func (h *Hub) Broadcast() {
	h.mu.Lock()
	channels := make([]string, 0, len(h.subs))
	for ch := range h.subs {
		channels = append(channels, ch)
	}
	h.mu.Unlock()
	for _, ch := range channels {
		h.Publish(Event{Channel: ch})
	}
}

// Channels は購読者が存在するチャネル名を返す。
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for ch, subs := range h.subs {
		if len(subs) > 0 {
			out = append(out, ch)
		}
	}
	return out
}

// Close はすべての購読を終了する。
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, subs := range h.subs {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, s.channel)
		}
	}
	close(s.events)
}

// Subscription は1チャネルの購読。
type Subscription struct {
	channel string
	events  chan Event
	done    chan struct{}
	once    sync.Once
	hub     *Hub
}

// Events は通知を受け取るチャネルを返す。購読終了時にcloseされる。
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Channel は購読しているチャネル名を返す。
func (s *Subscription) Channel() string {
	return s.channel
}

// Close は購読を解除する。複数回呼んでもよい。
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

var _ Feed = (*Hub)(nil)
