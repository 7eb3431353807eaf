package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/studiomatch/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// StatusForAPIError はエラーコードに対応するHTTPステータスを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidSwipe, model.ErrCodeInvalidDataRequest,
		model.ErrCodeInvalidURL, model.ErrCodeUploadFailed:
		return http.StatusBadRequest
	case model.ErrCodeTeamNotFound, model.ErrCodeProfileNotFound, model.ErrCodeConversationNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyInTeam:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeTeamCreateFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError はerrがAPIErrorであれば対応するステータスで、それ以外は500で書き込む。
func WriteError(w http.ResponseWriter, err error) {
	if apiErr, ok := model.AsAPIError(err); ok {
		WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
