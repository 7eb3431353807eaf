package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/security"
)

// ProfileAvatarUpdater はプロフィールのアバターURLを更新するインターフェース。
type ProfileAvatarUpdater interface {
	UpdateAvatarURL(ctx context.Context, id, avatarURL string) error
}

// AvatarService はアバターの保存とプロフィールへの反映を行う。
type AvatarService struct {
	store    AvatarStore
	guard    security.LinkGuard
	profiles ProfileAvatarUpdater
	logger   *slog.Logger
}

// NewAvatarService はAvatarServiceを生成する。
func NewAvatarService(store AvatarStore, guard security.LinkGuard, profiles ProfileAvatarUpdater, logger *slog.Logger) *AvatarService {
	return &AvatarService{store: store, guard: guard, profiles: profiles, logger: logger}
}

// SetAvatar は画像を保存し、プロフィールのavatar_urlを更新して公開URLを返す。
func (s *AvatarService) SetAvatar(ctx context.Context, userID string, body []byte, contentType string) (string, error) {
	if len(body) == 0 || len(body) > MaxAvatarBytes || !AllowedContentType(contentType) {
		return "", model.NewUploadFailedError()
	}

	avatarURL, err := s.store.Upload(ctx, userID, body, contentType)
	if err != nil {
		s.logger.Error("アバターのアップロードに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", model.NewUploadFailedError()
	}

	if err := s.profiles.UpdateAvatarURL(ctx, userID, avatarURL); err != nil {
		s.logger.Error("アバターURLの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return avatarURL, nil
}

// ImportFromURL は外部URLの画像を取得してアバターとして保存する。
// 取得は内部ネットワークへ到達しないクライアントで行い、サイズを制限する。
func (s *AvatarService) ImportFromURL(ctx context.Context, userID, rawURL string) (string, error) {
	if err := s.guard.ValidateURL(rawURL); err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}

	body, contentType, err := s.guard.Fetch(ctx, rawURL, MaxAvatarBytes)
	if err != nil {
		s.logger.Warn("アバター画像の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, security.ErrResponseTooLarge) {
			return "", model.NewUploadFailedError()
		}
		return "", model.NewInvalidURLError("画像を取得できませんでした")
	}
	return s.SetAvatar(ctx, userID, body, contentType)
}
