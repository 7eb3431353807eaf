// Package datarequest は利用者からのデータエクスポート・削除要求の受付を提供する。
// 要求の処理そのものは管理者側のワークフローで行う。
package datarequest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
)

// 監査イベントのアクション名。
const (
	AuditActionRequested = "data_request.created"
)

// DefaultListLimit は処理待ち一覧の既定件数。
const DefaultListLimit = 100

// ParseKind は要求種別の文字列を検証する。
func ParseKind(s string) (model.DataRequestKind, error) {
	switch k := model.DataRequestKind(s); k {
	case model.DataRequestExport, model.DataRequestDeletion:
		return k, nil
	}
	return "", model.NewInvalidDataRequestError(s)
}

// Service はデータ要求のサービス層。
type Service struct {
	requests repository.DataRequestRepository
	audit    repository.AuditRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(requests repository.DataRequestRepository, audit repository.AuditRepository, logger *slog.Logger) *Service {
	return &Service{requests: requests, audit: audit, logger: logger}
}

// Request はデータ要求を受け付ける。
// 同じ種別の処理待ち要求が既にある場合は新規作成せず、既存の要求とfalseを返す。
func (s *Service) Request(ctx context.Context, userID, kind string) (*model.DataRequest, bool, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.requests.FindPending(ctx, userID, k)
	if err != nil {
		return nil, false, fmt.Errorf("処理待ち要求の確認に失敗しました: %w", err)
	}
	if existing != nil {
		s.logger.Info("処理待ちのデータ要求が既に存在します",
			slog.String("user_id", userID),
			slog.String("kind", string(k)),
			slog.String("request_id", existing.ID),
		)
		return existing, false, nil
	}

	req := &model.DataRequest{UserID: userID, Kind: k}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, false, fmt.Errorf("データ要求の作成に失敗しました: %w", err)
	}

	s.logger.Info("データ要求を受け付けました",
		slog.String("user_id", userID),
		slog.String("kind", string(k)),
		slog.String("request_id", req.ID),
	)

	// 監査ログは記録に失敗しても要求自体は受け付け済みとする
	if s.audit != nil {
		event := &model.AuditEvent{
			UserID: userID,
			Action: AuditActionRequested,
			Detail: map[string]string{"kind": string(k), "request_id": req.ID},
		}
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn("監査イベントの記録に失敗しました",
				slog.String("user_id", userID),
				slog.String("action", AuditActionRequested),
				slog.String("error", err.Error()),
			)
		}
	}
	return req, true, nil
}

// ListPending は処理待ちの要求を古い順に返す。管理者向け。
func (s *Service) ListPending(ctx context.Context, limit int) ([]model.DataRequest, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	reqs, err := s.requests.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []model.DataRequest{}
	}
	return reqs, nil
}
