package model

import "time"

// MatchType はスワイプの方向を表す。
type MatchType string

const (
	// MatchTypeIndividual は個人から個人へのスワイプ。
	MatchTypeIndividual MatchType = "individual_to_individual"
	// MatchTypeIndividualToTeam は個人からチームへのスワイプ。
	MatchTypeIndividualToTeam MatchType = "individual_to_team"
	// MatchTypeTeamToIndividual はチームから個人へのスワイプ。
	MatchTypeTeamToIndividual MatchType = "team_to_individual"
)

// IsValid はスワイプ種別が定義済みの値かを返す。
func (t MatchType) IsValid() bool {
	switch t {
	case MatchTypeIndividual, MatchTypeIndividualToTeam, MatchTypeTeamToIndividual:
		return true
	}
	return false
}

// TargetsTeam はスワイプ対象がチームかを返す。
func (t MatchType) TargetsTeam() bool {
	return t == MatchTypeIndividualToTeam
}

// MatchStatus はマッチの状態を表す。状態遷移はサーバー側で行われる。
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusRejected MatchStatus = "rejected"
)

// Match は一方向のスワイプ記録。書き込み後は不変。
type Match struct {
	ID           string
	SourceUserID string
	TargetID     string
	Type         MatchType
	Status       MatchStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
