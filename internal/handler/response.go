package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studiomatch/internal/middleware"
	"github.com/hitoshi/studiomatch/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 64 << 10

// profileResponse はプロフィールのJSONレスポンス型。
type profileResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Program           string    `json:"program"`
	Skills            []string  `json:"skills"`
	Bio               string    `json:"bio"`
	PrimaryStudio     string    `json:"primaryStudio"`
	StudioPreferences []string  `json:"studioPreferences"`
	AvatarURL         string    `json:"avatarUrl,omitempty"`
	PortfolioURL      string    `json:"portfolioUrl,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// teamResponse はチームのJSONレスポンス型。
type teamResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Studio         string            `json:"studio"`
	Description    string            `json:"description"`
	LookingFor     string            `json:"lookingFor"`
	Members        []profileResponse `json:"members"`
	TargetPrograms []string          `json:"targetPrograms"`
	SkillsNeeded   []string          `json:"skillsNeeded"`
	CreatedBy      string            `json:"createdBy"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// dataRequestResponse はデータ要求のJSONレスポンス型。
type dataRequestResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requestedAt"`
}

func toProfileResponse(p model.Profile) profileResponse {
	prefs := make([]string, len(p.StudioPreferences))
	for i, s := range p.StudioPreferences {
		prefs[i] = string(s)
	}
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	return profileResponse{
		ID:                p.ID,
		Name:              p.Name,
		Program:           string(p.Program),
		Skills:            skills,
		Bio:               p.Bio,
		PrimaryStudio:     string(p.PrimaryStudio),
		StudioPreferences: prefs,
		AvatarURL:         p.AvatarURL,
		PortfolioURL:      p.PortfolioURL,
		CreatedAt:         p.CreatedAt,
	}
}

func toProfileResponses(ps []model.Profile) []profileResponse {
	out := make([]profileResponse, len(ps))
	for i, p := range ps {
		out[i] = toProfileResponse(p)
	}
	return out
}

func toTeamResponse(t model.Team) teamResponse {
	programs := make([]string, len(t.TargetPrograms))
	for i, p := range t.TargetPrograms {
		programs[i] = string(p)
	}
	skills := t.SkillsNeeded
	if skills == nil {
		skills = []string{}
	}
	return teamResponse{
		ID:             t.ID,
		Name:           t.Name,
		Studio:         string(t.Studio),
		Description:    t.Description,
		LookingFor:     t.LookingFor,
		Members:        toProfileResponses(t.Members),
		TargetPrograms: programs,
		SkillsNeeded:   skills,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
	}
}

func toTeamResponses(ts []model.Team) []teamResponse {
	out := make([]teamResponse, len(ts))
	for i, t := range ts {
		out[i] = toTeamResponse(t)
	}
	return out
}

func toDataRequestResponse(d model.DataRequest) dataRequestResponse {
	return dataRequestResponse{
		ID:          d.ID,
		UserID:      d.UserID,
		Kind:        string(d.Kind),
		Status:      d.Status,
		RequestedAt: d.RequestedAt,
	}
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。失敗時はバリデーションエラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("body", "リクエストボディが空です")
		}
		return model.NewValidationError("body", "JSONの形式が不正です")
	}
	return nil
}

// requireUserID はコンテキストからユーザーIDを取り出す。取得できない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return "", false
	}
	return userID, true
}

func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// handleServiceError はサービス層のエラーを統一フォーマットで返す。
// APIError以外はログに記録し、500として扱う。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if _, ok := model.AsAPIError(err); !ok {
		logger.Error("internal server error", slog.String("error", err.Error()))
	}
	middleware.WriteError(w, err)
}
