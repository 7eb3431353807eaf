package realtime

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_PublishFansOutPerChannel(t *testing.T) {
	h := NewHub()
	defer h.Close()
	ctx := context.Background()

	m1, _ := h.Subscribe(ctx, ChannelMessages)
	m2, _ := h.Subscribe(ctx, ChannelMessages)
	rr, _ := h.Subscribe(ctx, ChannelReadReceipts)

	h.Publish(Event{Channel: ChannelMessages, Payload: []byte(`{"sender_id":"u1"}`)})

	for _, sub := range []*Subscription{m1, m2} {
		if e := receive(t, sub); string(e.Payload) != `{"sender_id":"u1"}` {
			t.Errorf("payload = %s", e.Payload)
		}
	}
	select {
	case e := <-rr.Events():
		t.Errorf("read_receipts subscriber got %+v", e)
	default:
	}
}

func TestHub_CloseSubscriptionStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub, _ := h.Subscribe(context.Background(), ChannelMessages)
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel should be closed")
	}
	h.Publish(Event{Channel: ChannelMessages, Payload: []byte("x")})
	if got := h.Channels(); len(got) != 0 {
		t.Errorf("channels = %v, want none", got)
	}
}

func TestHub_ContextCancelClosesSubscription(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := h.Subscribe(ctx, ChannelReadReceipts)
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

// 溢れた通知は捨て、Publishはブロックしない。
func TestHub_PublishDoesNotBlockWhenFull(t *testing.T) {
	h := NewHub()
	defer h.Close()
	sub, _ := h.Subscribe(context.Background(), ChannelMessages)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*3; i++ {
			h.Publish(Event{Channel: ChannelMessages, Payload: []byte("x")})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	if n := len(sub.Events()); n != subscriptionBuffer {
		t.Errorf("buffered = %d, want %d", n, subscriptionBuffer)
	}
}

func TestHub_CloseEndsAllAndRejectsNew(t *testing.T) {
	h := NewHub()
	s1, _ := h.Subscribe(context.Background(), ChannelMessages)
	s2, _ := h.Subscribe(context.Background(), ChannelReadReceipts)
	h.Close()
	h.Close()

	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Events(); ok {
			t.Errorf("%s should be closed", s.Channel())
		}
	}
	if _, err := h.Subscribe(context.Background(), ChannelMessages); err != ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestHub_BroadcastSendsResync(t *testing.T) {
	h := NewHub()
	defer h.Close()
	m, _ := h.Subscribe(context.Background(), ChannelMessages)
	r, _ := h.Subscribe(context.Background(), ChannelReadReceipts)

	h.Broadcast()

	for _, s := range []*Subscription{m, r} {
		e := receive(t, s)
		if !e.Resync() || e.Channel != s.Channel() {
			t.Errorf("event = %+v, want resync on %s", e, s.Channel())
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	e := Event{Channel: ChannelMessages, Payload: []byte(`{"conversation_id":"c1","sender_id":"u2","created_at":"2026-10-01T12:00:00Z"}`)}
	m, err := DecodeMessage(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ConversationID != "c1" || m.SenderID != "u2" || !m.CreatedAt.Equal(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("decoded = %+v", m)
	}

	if _, err := DecodeMessage(Event{Channel: ChannelReadReceipts, Payload: e.Payload}); err == nil {
		t.Error("expected channel mismatch error")
	}
	if _, err := DecodeMessage(Event{Channel: ChannelMessages, Payload: []byte("not json")}); err == nil {
		t.Error("expected decode error")
	}
}

func TestDecodeReadReceipt(t *testing.T) {
	e := Event{Channel: ChannelReadReceipts, Payload: []byte(`{"conversation_id":"c1","user_id":"u1","last_read_at":"2026-10-01T12:00:00.123456+00:00"}`)}
	r, err := DecodeReadReceipt(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.UserID != "u1" || r.ConversationID != "c1" || r.LastReadAt.IsZero() {
		t.Errorf("decoded = %+v", r)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func TestBridge_ForwardsUntilCancelled(t *testing.T) {
	src := NewHub()
	defer src.Close()
	dst := &recordingPublisher{got: make(chan struct{}, 4)}
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Bridge(ctx, src, dst, newTestLogger(&buf), ChannelMessages) }()

	// 購読が登録されるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for len(src.Channels()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	src.Publish(Event{Channel: ChannelMessages, Payload: []byte("p")})

	select {
	case <-dst.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Bridge returned %v", err)
	}
	if string(dst.events[0].Payload) != "p" {
		t.Errorf("forwarded = %+v", dst.events)
	}
}

// TEST_DATABASE_URLが設定されている場合のみ、実際のNOTIFYを受信できることを確認する。
func TestPostgresFeed_Integration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	feed := NewPostgresFeed(dbURL, DefaultPostgresFeedOptions(), newTestLogger(&buf), nil)
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := feed.Subscribe(ctx, ChannelMessages)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	if _, err := db.Exec(`SELECT pg_notify($1, $2)`, ChannelMessages, `{"sender_id":"u9"}`); err != nil {
		t.Fatalf("pg_notify: %v", err)
	}
	e := receive(t, sub)
	if m, err := DecodeMessage(e); err != nil || m.SenderID != "u9" {
		t.Errorf("decoded = %+v, err = %v", m, err)
	}

	cancel()
	<-done
}
