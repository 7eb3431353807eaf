package model

import "time"

// MemberStatus はチームメンバーシップの状態を表す。
type MemberStatus string

const (
	MemberStatusPending   MemberStatus = "pending"
	MemberStatusInvited   MemberStatus = "invited"
	MemberStatusConfirmed MemberStatus = "confirmed"
)

// MemberRole はチーム内での役割を表す。
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
)

// Team はチームを表す。
// Members は保存された値ではなく、confirmed なメンバーシップから組み立てる。
type Team struct {
	ID             string
	Name           string
	Studio         Studio
	Description    string
	LookingFor     string
	Members        []Profile
	TargetPrograms []Program
	SkillsNeeded   []string
	CreatedBy      string
	CreatedAt      time.Time
}

// TeamMember はteam_membersテーブルの1行を表す。
type TeamMember struct {
	TeamID   string
	UserID   string
	Role     MemberRole
	Status   MemberStatus
	JoinedAt time.Time
}
