package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, team, match, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeTeamNotFound         = "TEAM_NOT_FOUND"
	ErrCodeAlreadyInTeam        = "ALREADY_IN_TEAM"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeTeamCreateFailed     = "TEAM_CREATE_FAILED"
	ErrCodeInvalidSwipe         = "INVALID_SWIPE"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInvalidDataRequest   = "INVALID_DATA_REQUEST"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeUploadFailed         = "UPLOAD_FAILED"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
)

// AsAPIError はerrチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewValidationError は入力検証エラーを生成する。
// メッセージには最初に見つかった検証エラーをそのまま含める。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewTeamNotFoundError はチーム未検出エラーを生成する。
func NewTeamNotFoundError(teamID string) *APIError {
	return &APIError{
		Code:     ErrCodeTeamNotFound,
		Message:  fmt.Sprintf("指定されたチームが見つかりません: %s", teamID),
		Category: "team",
		Action:   "チームIDを確認してください。",
	}
}

// NewAlreadyInTeamError は既にチームに所属しているユーザーがチームを作成しようとした場合のエラーを生成する。
func NewAlreadyInTeamError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInTeam,
		Message:  "既にチームに所属しています。",
		Category: "team",
		Action:   "新しいチームを作成するには、管理者に現在のチームからの離脱を依頼してください。",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: "auth",
		Action:   "プロフィールを作成してから再度お試しください。",
	}
}

// NewTeamCreateFailedError はチーム作成の失敗を利用者に通知するエラーを生成する。
func NewTeamCreateFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTeamCreateFailed,
		Message:  fmt.Sprintf("チームの作成に失敗しました: %v", cause),
		Category: "team",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidSwipeError は不正なスワイプ要求のエラーを生成する。
func NewInvalidSwipeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSwipe,
		Message:  fmt.Sprintf("無効なスワイプです: %s", reason),
		Category: "match",
		Action:   "候補一覧を更新してから再度お試しください。",
	}
}

// NewConversationNotFoundError は会話が存在しないか、要求者が参加していない場合のエラーを生成する。
func NewConversationNotFoundError(conversationID string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", conversationID),
		Category: "match",
		Action:   "会話一覧を更新してから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidDataRequestError は不正なデータ要求種別のエラーを生成する。
func NewInvalidDataRequestError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDataRequest,
		Message:  fmt.Sprintf("無効なデータ要求です: %s", kind),
		Category: "validation",
		Action:   "種別には export または deletion を指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "公開されている https:// のURLを入力してください。",
	}
}

// NewUploadFailedError はアバター画像のアップロード失敗エラーを生成する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "画像のアップロードに失敗しました。",
		Category: "system",
		Action:   "画像サイズと形式を確認し、再度お試しください。",
	}
}
