package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultHeartbeatInterval はSSE接続を維持するためのコメント送信間隔。
const DefaultHeartbeatInterval = 25 * time.Second

// UnreadCounter は未読数を1回だけ算出するインターフェース。
type UnreadCounter interface {
	Count(ctx context.Context, userID string) (int, error)
}

// UnreadStream は接続ごとの未読数リコンサイラのインターフェース。
type UnreadStream interface {
	Start(ctx context.Context) error
	Updates() <-chan int
	Count() int
	Stop()
}

// UnreadStreamFactory はユーザーごとのUnreadStreamを生成する。
type UnreadStreamFactory func(userID string) UnreadStream

// UnreadHandler は未読数の取得とServer-Sent Eventsによる配信を扱う。
type UnreadHandler struct {
	counter   UnreadCounter
	newStream UnreadStreamFactory
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewUnreadHandler はUnreadHandlerを生成する。heartbeatが0以下の場合はDefaultHeartbeatIntervalを使う。
func NewUnreadHandler(counter UnreadCounter, newStream UnreadStreamFactory, heartbeat time.Duration, logger *slog.Logger) *UnreadHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnreadHandler{counter: counter, newStream: newStream, heartbeat: heartbeat, logger: logger}
}

type unreadResponse struct {
	Count int `json:"count"`
}

// Get は未読数を返す。
// GET /api/unread
func (h *UnreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.counter.Count(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if n < 0 {
		n = 0
	}
	writeJSON(w, http.StatusOK, unreadResponse{Count: n})
}

// Stream は未読数の変化をServer-Sent Eventsで配信する。
// リクエストのコンテキスト終了で購読を解除する。
// GET /api/unread/stream
func (h *UnreadHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support flushing")
		handleServiceError(w, h.logger, fmt.Errorf("streaming unsupported"))
		return
	}

	ctx := r.Context()
	stream := h.newStream(userID)
	if err := stream.Start(ctx); err != nil {
		handleServiceError(w, h.logger, fmt.Errorf("未読数の購読開始に失敗しました: %w", err))
		return
	}
	defer stream.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var id int
	send := func(n int) error {
		id++
		b, err := json.Marshal(unreadResponse{Count: n})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: unread\ndata: %s\n\n", id, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(stream.Count()); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	updates := stream.Updates()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("未読数ストリームを終了します", slog.String("user_id", userID))
			return
		case n, ok := <-updates:
			if !ok {
				return
			}
			if err := send(n); err != nil {
				h.logger.Debug("未読数の送信に失敗しました",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
