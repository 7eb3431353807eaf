package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/studiomatch/internal/datarequest"
	"github.com/hitoshi/studiomatch/internal/model"
)

// DataRequestServiceInterface はデータ要求のインターフェース。
type DataRequestServiceInterface interface {
	Request(ctx context.Context, userID, kind string) (*model.DataRequest, bool, error)
	ListPending(ctx context.Context, limit int) ([]model.DataRequest, error)
}

// DataRequestHandler はデータのエクスポート・削除要求を扱う。
type DataRequestHandler struct {
	service DataRequestServiceInterface
	logger  *slog.Logger
}

// NewDataRequestHandler はDataRequestHandlerを生成する。
func NewDataRequestHandler(service DataRequestServiceInterface, logger *slog.Logger) *DataRequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataRequestHandler{service: service, logger: logger}
}

type createDataRequestRequest struct {
	Kind string `json:"kind"`
}

// Create はデータ要求を登録する。同じ種別の処理待ち要求がある場合はそれを200で返す。
// POST /api/users/me/data-requests
func (h *DataRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createDataRequestRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}

	dr, created, err := h.service.Request(r.Context(), userID, req.Kind)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toDataRequestResponse(*dr))
}

// ListPending は処理待ちの要求を古い順に返す。管理者専用。
// GET /api/admin/data-requests?limit=N
func (h *DataRequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := datarequest.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handleServiceError(w, h.logger, model.NewValidationError("limit", "正の整数を指定してください"))
			return
		}
		limit = n
	}

	requests, err := h.service.ListPending(r.Context(), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]dataRequestResponse, len(requests))
	for i, dr := range requests {
		resp[i] = toDataRequestResponse(dr)
	}
	writeJSON(w, http.StatusOK, resp)
}
