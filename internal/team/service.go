package team

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
	"github.com/hitoshi/studiomatch/internal/security"
	"github.com/hitoshi/studiomatch/internal/viewmodel"
)

// AuditActionTeamCreated はチーム作成の監査アクション名。
const AuditActionTeamCreated = "team.created"

// TeamWriter はチーム作成に必要な書き込みインターフェース。
type TeamWriter interface {
	FindConfirmedMembership(ctx context.Context, userID string) (*model.TeamMember, error)
	CreateWithOwner(ctx context.Context, team repository.TeamRecord, conversationID string) (time.Time, error)
	Create(ctx context.Context, team *repository.TeamRecord) error
	AddMember(ctx context.Context, member model.TeamMember) error
	Delete(ctx context.Context, id string) error
}

// ConversationWriter はチーム会話の作成インターフェース。
type ConversationWriter interface {
	Create(ctx context.Context, conversation *model.Conversation) error
	AddParticipant(ctx context.Context, conversationID, userID string) error
	Delete(ctx context.Context, id string) error
}

// AuditRecorder は監査イベントの記録インターフェース。
type AuditRecorder interface {
	Record(ctx context.Context, event *model.AuditEvent) error
}

// Service はチーム作成のサービス層。
type Service struct {
	teams         TeamWriter
	conversations ConversationWriter
	profiles      ProfileBatcher
	audit         AuditRecorder
	sanitizer     security.TextSanitizer
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	newID         func() string
}

// NewService はServiceを生成する。
func NewService(
	teams TeamWriter,
	conversations ConversationWriter,
	profiles ProfileBatcher,
	audit AuditRecorder,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		teams:         teams,
		conversations: conversations,
		profiles:      profiles,
		audit:         audit,
		sanitizer:     sanitizer,
		logger:        logger,
		metrics:       mc,
		newID:         func() string { return uuid.New().String() },
	}
}

// Create はチームを作成し、作成者をオーナーとして登録する。
//
// 入力検証はストアへのアクセスより前に行い、最初のエラーをそのまま返す。
// まずサーバー側関数による一括作成を試み、失敗した場合は4段階の逐次作成に切り替える。
// 逐次作成の途中で失敗した場合は作成済みの会話とチームを削除してから元のエラーを返す。
func (s *Service) Create(ctx context.Context, creatorID string, in CreateInput) (*model.Team, error) {
	in = s.sanitize(in)
	if apiErr := in.Validate(); apiErr != nil {
		return nil, apiErr
	}

	existing, err := s.teams.FindConfirmedMembership(ctx, creatorID)
	if err != nil {
		s.metrics.RecordTeamCreation(metrics.TeamPathFailed)
		return nil, model.NewTeamCreateFailedError(err)
	}
	if existing != nil {
		return nil, model.NewAlreadyInTeamError()
	}

	rec := repository.TeamRecord{
		ID:             s.newID(),
		Name:           in.Name,
		Studio:         in.Studio,
		Description:    sql.NullString{String: in.Description, Valid: true},
		LookingFor:     sql.NullString{String: in.LookingFor, Valid: true},
		TargetPrograms: in.TargetPrograms,
		SkillsNeeded:   in.SkillsNeeded,
		CreatedBy:      creatorID,
	}
	conversationID := s.newID()

	createdAt, err := s.teams.CreateWithOwner(ctx, rec, conversationID)
	if err == nil {
		s.metrics.RecordTeamCreation(metrics.TeamPathAtomic)
		rec.CreatedAt = createdAt
	} else {
		s.logger.Warn("一括作成に失敗したため逐次作成に切り替えます",
			slog.String("user_id", creatorID),
			slog.String("team_id", rec.ID),
			slog.String("error", err.Error()),
		)
		if err := s.createSequential(ctx, &rec, conversationID); err != nil {
			s.metrics.RecordTeamCreation(metrics.TeamPathFailed)
			s.logger.Error("チームの作成に失敗しました",
				slog.String("user_id", creatorID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewTeamCreateFailedError(err)
		}
		s.metrics.RecordTeamCreation(metrics.TeamPathSequential)
	}

	s.recordAudit(ctx, creatorID, rec.ID, conversationID)

	members, err := hydrateMembers(ctx, s.profiles, []model.TeamMember{{TeamID: rec.ID, UserID: creatorID}})
	if err != nil {
		s.logger.Warn("作成者のプロフィール取得に失敗しました",
			slog.String("user_id", creatorID),
			slog.String("error", err.Error()),
		)
		members = nil
	}
	team := viewmodel.Team(rec, members)
	return &team, nil
}

// createSequential はチーム、オーナー登録、チーム会話、会話参加者を順に作成する。
func (s *Service) createSequential(ctx context.Context, rec *repository.TeamRecord, conversationID string) error {
	now := time.Now().UTC()
	rec.CreatedAt = now

	if err := s.teams.Create(ctx, rec); err != nil {
		return err
	}

	owner := model.TeamMember{
		TeamID:   rec.ID,
		UserID:   rec.CreatedBy,
		Role:     model.MemberRoleOwner,
		Status:   model.MemberStatusConfirmed,
		JoinedAt: now,
	}
	if err := s.teams.AddMember(ctx, owner); err != nil {
		s.compensate(rec.ID, "")
		return err
	}

	conv := &model.Conversation{
		ID:        conversationID,
		Type:      model.ConversationTypeTeam,
		TeamID:    rec.ID,
		CreatedAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		s.compensate(rec.ID, "")
		return err
	}

	if err := s.conversations.AddParticipant(ctx, conversationID, rec.CreatedBy); err != nil {
		s.compensate(rec.ID, conversationID)
		return err
	}
	return nil
}

// compensate は逐次作成で作成済みの行を削除する。
// 呼び出し元のコンテキストが終了していても削除できるよう、独立したコンテキストを使う。
func (s *Service) compensate(teamID, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if conversationID != "" {
		if err := s.conversations.Delete(ctx, conversationID); err != nil {
			s.logger.Error("会話の削除に失敗しました",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.teams.Delete(ctx, teamID); err != nil {
		s.logger.Error("チームの削除に失敗しました",
			slog.String("team_id", teamID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("途中まで作成したチームを削除しました", slog.String("team_id", teamID))
}

func (s *Service) sanitize(in CreateInput) CreateInput {
	if s.sanitizer == nil {
		return in
	}
	in.Name = s.sanitizer.Sanitize(in.Name)
	in.Description = s.sanitizer.Sanitize(in.Description)
	in.LookingFor = s.sanitizer.Sanitize(in.LookingFor)
	skills := make([]string, len(in.SkillsNeeded))
	for i, sk := range in.SkillsNeeded {
		skills[i] = s.sanitizer.Sanitize(sk)
	}
	in.SkillsNeeded = skills
	return in
}

func (s *Service) recordAudit(ctx context.Context, userID, teamID, conversationID string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &model.AuditEvent{
		UserID: userID,
		Action: AuditActionTeamCreated,
		Detail: map[string]string{
			"team_id":         teamID,
			"conversation_id": conversationID,
		},
	})
	if err != nil {
		s.logger.Warn("監査イベントの記録に失敗しました",
			slog.String("action", AuditActionTeamCreated),
			slog.String("error", fmt.Sprint(err)),
		)
	}
}
