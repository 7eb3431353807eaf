package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/studiomatch/internal/middleware"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/storage"
)

// AvatarServiceInterface はアバター更新のインターフェース。
type AvatarServiceInterface interface {
	SetAvatar(ctx context.Context, userID string, body []byte, contentType string) (string, error)
	ImportFromURL(ctx context.Context, userID, rawURL string) (string, error)
}

// AvatarHandler はプロフィール画像のアップロードと外部URLからの取り込みを扱う。
type AvatarHandler struct {
	service AvatarServiceInterface
	logger  *slog.Logger
}

// NewAvatarHandler はAvatarHandlerを生成する。
func NewAvatarHandler(service AvatarServiceInterface, logger *slog.Logger) *AvatarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarHandler{service: service, logger: logger}
}

type avatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}

type importAvatarRequest struct {
	URL string `json:"url"`
}

// Upload はリクエストボディの画像をアバターとして保存する。
// PUT /api/profile/avatar
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, storage.MaxAvatarBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewUploadFailedError())
			return
		}
		handleServiceError(w, h.logger, model.NewUploadFailedError())
		return
	}

	avatarURL, err := h.service.SetAvatar(r.Context(), userID, body, r.Header.Get("Content-Type"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{AvatarURL: avatarURL})
}

// Import は外部URLの画像を取得してアバターとして保存する。
// POST /api/profile/avatar/import
func (h *AvatarHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req importAvatarRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}
	if req.URL == "" {
		handleServiceError(w, h.logger, model.NewValidationError("url", "必須です"))
		return
	}

	avatarURL, err := h.service.ImportFromURL(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{AvatarURL: avatarURL})
}
