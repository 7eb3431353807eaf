// Package viewmodel は保存済みレコードを画面表示用のプロフィール・チームへ変換する。
// すべての関数は副作用を持たず、どの入力に対してもpanicしない。
package viewmodel

import (
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
)

// Profile はprofiles行をmodel.Profileへ変換する。
//
// 欠損値の補完:
//   - skillsがNULLの場合は空スライス
//   - bioがNULLの場合は空文字
//   - studio_preferencesがNULLまたは空の場合はprimary_studioのみのリスト
//   - primary_studioがリストに含まれない場合は先頭に挿入
//
// 未知の列挙値はそのまま通す。
func Profile(rec repository.ProfileRecord) model.Profile {
	return model.Profile{
		ID:                rec.ID,
		Name:              rec.Name,
		Program:           model.Program(rec.Program),
		Skills:            nonNil(rec.Skills),
		Bio:               rec.Bio.String,
		PrimaryStudio:     model.Studio(rec.PrimaryStudio),
		StudioPreferences: studioPreferences(rec.PrimaryStudio, rec.StudioPreferences),
		AvatarURL:         rec.AvatarURL.String,
		PortfolioURL:      rec.PortfolioURL.String,
		CreatedAt:         rec.CreatedAt,
	}
}

// Profiles は複数のprofiles行をまとめて変換する。順序は保持する。
func Profiles(recs []repository.ProfileRecord) []model.Profile {
	out := make([]model.Profile, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Profile(rec))
	}
	return out
}

// Team はteams行と組み立て済みのメンバー一覧をmodel.Teamへ変換する。
// membersがnilの場合は空スライスになる。
func Team(rec repository.TeamRecord, members []model.Profile) model.Team {
	if members == nil {
		members = []model.Profile{}
	}
	programs := make([]model.Program, 0, len(rec.TargetPrograms))
	for _, p := range rec.TargetPrograms {
		programs = append(programs, model.Program(p))
	}
	return model.Team{
		ID:             rec.ID,
		Name:           rec.Name,
		Studio:         model.Studio(rec.Studio),
		Description:    rec.Description.String,
		LookingFor:     rec.LookingFor.String,
		Members:        members,
		TargetPrograms: programs,
		SkillsNeeded:   nonNil(rec.SkillsNeeded),
		CreatedBy:      rec.CreatedBy,
		CreatedAt:      rec.CreatedAt,
	}
}

func studioPreferences(primary string, prefs []string) []model.Studio {
	out := make([]model.Studio, 0, len(prefs)+1)
	if len(prefs) == 0 {
		return append(out, model.Studio(primary))
	}
	found := false
	for _, p := range prefs {
		if p == primary {
			found = true
			break
		}
	}
	if !found {
		out = append(out, model.Studio(primary))
	}
	for _, p := range prefs {
		out = append(out, model.Studio(p))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
