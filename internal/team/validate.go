package team

import (
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/studiomatch/internal/model"
)

// 入力制限
const (
	MaxNameLength        = 60
	MaxDescriptionLength = 500
	MaxLookingForLength  = 300
	MaxSkills            = 20
	MaxSkillLength       = 40
)

// CreateInput はチーム作成の入力。
type CreateInput struct {
	Name           string   `json:"name"`
	Studio         string   `json:"studio"`
	Description    string   `json:"description"`
	LookingFor     string   `json:"lookingFor"`
	TargetPrograms []string `json:"targetPrograms"`
	SkillsNeeded   []string `json:"skillsNeeded"`
}

// Validate は入力を検証し、最初に見つかったエラーを返す。ストアには一切アクセスしない。
func (in CreateInput) Validate() *model.APIError {
	if n := utf8.RuneCountInString(in.Name); n < 1 || n > MaxNameLength {
		return model.NewValidationError("name", fmt.Sprintf("1〜%d文字で入力してください", MaxNameLength))
	}
	if !model.Studio(in.Studio).IsValid() {
		return model.NewValidationError("studio", fmt.Sprintf("未定義のスタジオです: %q", in.Studio))
	}
	if n := utf8.RuneCountInString(in.Description); n < 1 || n > MaxDescriptionLength {
		return model.NewValidationError("description", fmt.Sprintf("1〜%d文字で入力してください", MaxDescriptionLength))
	}
	if utf8.RuneCountInString(in.LookingFor) > MaxLookingForLength {
		return model.NewValidationError("lookingFor", fmt.Sprintf("%d文字以内で入力してください", MaxLookingForLength))
	}
	if len(in.SkillsNeeded) > MaxSkills {
		return model.NewValidationError("skillsNeeded", fmt.Sprintf("%d個以内で指定してください", MaxSkills))
	}
	for i, s := range in.SkillsNeeded {
		if n := utf8.RuneCountInString(s); n < 1 || n > MaxSkillLength {
			return model.NewValidationError(fmt.Sprintf("skillsNeeded[%d]", i), fmt.Sprintf("1〜%d文字で入力してください", MaxSkillLength))
		}
	}
	return nil
}
