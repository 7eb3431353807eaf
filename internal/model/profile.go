// Package model はドメインモデルを定義する。
package model

import "time"

// Program は学生が所属する学科トラックを表す。
// 未知の値もそのまま保持する（境界で既定値へ変換しない）。
type Program string

const (
	ProgramBDes  Program = "bdes"
	ProgramMDes  Program = "mdes"
	ProgramBFA   Program = "bfa"
	ProgramMFA   Program = "mfa"
	ProgramBArch Program = "barch"
	ProgramMArch Program = "march"
	ProgramBScCS Program = "bsc_cs"
	ProgramOther Program = "other"
)

// Studio はチームやユーザーが志向するスタジオを表す。
type Studio string

const (
	StudioInteraction   Studio = "interaction"
	StudioIndustrial    Studio = "industrial"
	StudioCommunication Studio = "communication"
	StudioEnvironments  Studio = "environments"
	StudioService       Studio = "service"
	StudioGames         Studio = "games"
)

// Studios は有効なスタジオの一覧。表示順を兼ねる。
var Studios = []Studio{
	StudioInteraction,
	StudioIndustrial,
	StudioCommunication,
	StudioEnvironments,
	StudioService,
	StudioGames,
}

// IsValid はスタジオが定義済みの値かを返す。
func (s Studio) IsValid() bool {
	for _, v := range Studios {
		if v == s {
			return true
		}
	}
	return false
}

// Profile はスワイプ対象として表示されるユーザープロフィール。
// StudioPreferences は必ず PrimaryStudio を含む。
type Profile struct {
	ID                string
	Name              string
	Program           Program
	Skills            []string
	Bio               string
	PrimaryStudio     Studio
	StudioPreferences []Studio
	AvatarURL         string // 未設定の場合は空文字
	PortfolioURL      string // 外部プロフィールへのリンク（任意）
	CreatedAt         time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
