package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studiomatch/internal/model"
)

// ConversationStore は既読処理に必要な会話リポジトリのインターフェース。
type ConversationStore interface {
	ListParticipations(ctx context.Context, userID string) ([]string, error)
	UpsertReadReceipt(ctx context.Context, receipt model.ReadReceipt) error
}

// ConversationHandler は会話の既読を扱う。
type ConversationHandler struct {
	store  ConversationStore
	logger *slog.Logger
	now    func() time.Time
}

// NewConversationHandler はConversationHandlerを生成する。
func NewConversationHandler(store ConversationStore, logger *slog.Logger) *ConversationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationHandler{store: store, logger: logger, now: time.Now}
}

// MarkRead は会話を現在時刻まで既読にする。既読時刻は後退しない。
// 既読情報の変更は通知され、未読数の再計算につながる。
// POST /api/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		handleServiceError(w, h.logger, model.NewValidationError("id", "会話IDを指定してください"))
		return
	}

	ids, err := h.store.ListParticipations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !slices.Contains(ids, conversationID) {
		handleServiceError(w, h.logger, model.NewConversationNotFoundError(conversationID))
		return
	}

	receipt := model.ReadReceipt{UserID: userID, ConversationID: conversationID, LastReadAt: h.now().UTC()}
	if err := h.store.UpsertReadReceipt(r.Context(), receipt); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
