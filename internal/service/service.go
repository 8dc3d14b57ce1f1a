// Package service реализует сценарии капитана и участника поверх хранилища
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/untibullet/teamfinder/internal/matching"
	"github.com/untibullet/teamfinder/internal/models"
	"github.com/untibullet/teamfinder/internal/realtime"
	"github.com/untibullet/teamfinder/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultCandidateLimit = 15
	DefaultTeamLimit      = 20
)

// Publisher рассылает события изменений подписчикам
type Publisher interface {
	Publish(e realtime.Event)
}

// Config задает размеры выдачи подбора
type Config struct {
	CandidateLimit int
	TeamLimit      int
}

// TeamService связывает хранилище, подсчет совпадений и рассылку событий
type TeamService struct {
	store    repository.Store
	events   Publisher
	logger   *zap.Logger
	validate *validator.Validate
	cfg      Config
}

// New создает сервис. Нулевые лимиты заменяются значениями по умолчанию.
func New(store repository.Store, events Publisher, logger *zap.Logger, cfg Config) *TeamService {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.TeamLimit <= 0 {
		cfg.TeamLimit = DefaultTeamLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamService{
		store:    store,
		events:   events,
		logger:   logger,
		validate: newValidator(),
		cfg:      cfg,
	}
}

type CreateTeamInput struct {
	CompetitionID uuid.UUID `json:"competition_id" validate:"required"`
	OwnerID       uuid.UUID `json:"owner_id" validate:"required"`
	Name          string    `json:"name" validate:"required,max=100"`
}

// CreateTeam создает команду, создатель становится капитаном
func (s *TeamService) CreateTeam(ctx context.Context, in CreateTeamInput) (*models.Team, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	team, err := s.store.CreateTeam(ctx, models.Team{
		CompetitionID: in.CompetitionID,
		OwnerID:       in.OwnerID,
		Name:          in.Name,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("team created",
		zap.String("team_id", team.ID.String()),
		zap.String("competition_id", team.CompetitionID.String()),
		zap.String("owner_id", team.OwnerID.String()),
	)
	return team, nil
}

type DeclareNeedsInput struct {
	TeamID     uuid.UUID `json:"team_id" validate:"required"`
	ActorID    uuid.UUID `json:"actor_id" validate:"required"`
	NeededRole string    `json:"needed_role" validate:"max=100"`
	Skills     string    `json:"skills"`
}

// SearchResult описывает итог поиска кандидатов для команды
type SearchResult struct {
	Candidates []models.CandidateMatch `json:"candidates"`
	AllMatches int                     `json:"all_matches"`
	TeamStatus models.TeamStatus       `json:"team_status"`
}

// NeedsResult содержит сохраненную потребность и найденных под нее кандидатов
type NeedsResult struct {
	Need models.TeamNeed `json:"need"`
	SearchResult
}

// DeclareNeeds сохраняет требования команды и сразу ищет кандидатов
func (s *TeamService) DeclareNeeds(ctx context.Context, in DeclareNeedsInput) (*NeedsResult, error) {
	in.NeededRole = strings.TrimSpace(in.NeededRole)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	team, err := s.ownedTeam(ctx, in.TeamID, in.ActorID)
	if err != nil {
		return nil, err
	}

	skillIDs, err := s.store.EnsureSkillIDs(ctx, matching.ParseSkillNames(in.Skills))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skills: %w", err)
	}

	need := models.TeamNeed{TeamID: team.ID, NeededSkills: skillIDs}
	if in.NeededRole != "" {
		role := in.NeededRole
		need.NeededRole = &role
	}
	if err := s.store.UpsertTeamNeed(ctx, need); err != nil {
		return nil, err
	}

	res, err := s.searchCandidates(ctx, team, skillIDs)
	if err != nil {
		return nil, err
	}
	return &NeedsResult{Need: need, SearchResult: *res}, nil
}

// SearchCandidates пересчитывает кандидатов по сохраненной потребности команды
func (s *TeamService) SearchCandidates(ctx context.Context, teamID, actorID uuid.UUID) (*SearchResult, error) {
	details, err := s.store.GetTeamDetails(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if details.Team.OwnerID != actorID {
		return nil, repository.ErrForbidden
	}

	var need []int64
	if details.Need != nil {
		need = details.Need.NeededSkills
	}
	return s.searchCandidates(ctx, &details.Team, need)
}

func (s *TeamService) searchCandidates(ctx context.Context, team *models.Team, need []int64) (*SearchResult, error) {
	var all, top []models.CandidateMatch
	if len(need) > 0 {
		intents, err := s.store.ListPendingIntents(ctx, team.CompetitionID)
		if err != nil {
			return nil, err
		}
		all, top = matching.RankCandidates(need, matching.GroupIntentSkills(intents), team.OwnerID, s.cfg.CandidateLimit)
	}

	if len(all) > 0 {
		suggestions := make([]models.MatchSuggestion, 0, len(all))
		for _, m := range all {
			suggestions = append(suggestions, models.MatchSuggestion{TeamID: team.ID, UserID: m.UserID, Score: m.Score})
		}
		if err := s.store.UpsertMatchSuggestions(ctx, suggestions); err != nil {
			return nil, fmt.Errorf("failed to store suggestions: %w", err)
		}
	}

	status := models.TeamOpen
	if len(all) == 0 {
		status = models.TeamPending
	}
	if err := s.store.UpdateTeamStatus(ctx, team.ID, status); err != nil {
		return nil, err
	}

	s.logger.Info("candidate search finished",
		zap.String("team_id", team.ID.String()),
		zap.Int("matches", len(all)),
		zap.String("team_status", string(status)),
	)

	if top == nil {
		top = []models.CandidateMatch{}
	}
	return &SearchResult{Candidates: top, AllMatches: len(all), TeamStatus: status}, nil
}

// Итоги приглашения одного пользователя
const (
	InviteSent           = "sent"
	InviteAlreadyPending = "already_pending"
	InviteAlreadyMember  = "already_member"
	InviteAlreadyOnTeam  = "already_on_team"
)

type SendInvitationsInput struct {
	TeamID  uuid.UUID   `json:"team_id" validate:"required"`
	ActorID uuid.UUID   `json:"actor_id" validate:"required"`
	UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1"`
}

// InviteOutcome описывает результат приглашения одного пользователя
type InviteOutcome struct {
	UserID     uuid.UUID              `json:"user_id"`
	Status     string                 `json:"status"`
	Invitation *models.TeamInvitation `json:"invitation,omitempty"`
}

// SendInvitations приглашает выбранных кандидатов.
// Повторы в списке обрабатываются один раз.
func (s *TeamService) SendInvitations(ctx context.Context, in SendInvitationsInput) ([]InviteOutcome, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	team, err := s.ownedTeam(ctx, in.TeamID, in.ActorID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(in.UserIDs))
	outcomes := make([]InviteOutcome, 0, len(in.UserIDs))
	for _, userID := range in.UserIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		inv, err := s.invite(ctx, team, userID)
		out := InviteOutcome{UserID: userID, Invitation: inv}
		switch {
		case err == nil:
			out.Status = InviteSent
		case errors.Is(err, repository.ErrInvitePending):
			out.Status = InviteAlreadyPending
		case errors.Is(err, repository.ErrAlreadyMember):
			out.Status = InviteAlreadyMember
		case errors.Is(err, repository.ErrAlreadyOnTeam):
			out.Status = InviteAlreadyOnTeam
		default:
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// InviteUser приглашает одного пользователя в команду
func (s *TeamService) InviteUser(ctx context.Context, teamID, actorID, userID uuid.UUID) (*models.TeamInvitation, error) {
	team, err := s.ownedTeam(ctx, teamID, actorID)
	if err != nil {
		return nil, err
	}
	return s.invite(ctx, team, userID)
}

func (s *TeamService) invite(ctx context.Context, team *models.Team, userID uuid.UUID) (*models.TeamInvitation, error) {
	inv, err := s.store.CreateInvitation(ctx, team.ID, userID)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.TableInvitations, realtime.EventInsert, invitationRecord(*inv, team.OwnerID))
	s.logger.Info("invitation sent",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("team_id", team.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return inv, nil
}

// RegisterTeam регистрирует команду в ее соревновании, повторный вызов безопасен
func (s *TeamService) RegisterTeam(ctx context.Context, teamID, actorID uuid.UUID) (*models.TeamRegistration, error) {
	team, err := s.ownedTeam(ctx, teamID, actorID)
	if err != nil {
		return nil, err
	}
	reg, err := s.store.UpsertRegistration(ctx, team.ID, team.CompetitionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("team registered",
		zap.String("team_id", team.ID.String()),
		zap.String("competition_id", team.CompetitionID.String()),
	)
	return reg, nil
}

type FindTeamsInput struct {
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	CompetitionID uuid.UUID `json:"competition_id" validate:"required"`
	Skills        string    `json:"skills" validate:"required"`
}

// FindTeamsResult содержит подходящие команды либо отметку, что их нет
type FindTeamsResult struct {
	Teams       []models.TeamMatch `json:"teams"`
	AllMatches  int                `json:"all_matches"`
	NoTeamFound bool               `json:"no_team_found"`
	// IntentRecorded сообщает, удалось ли поставить участника в очередь ожидания
	IntentRecorded bool `json:"intent_recorded"`
}

// FindTeams подбирает команды по навыкам участника.
// Если ничего не нашлось, участник попадает в очередь ожидания соревнования.
func (s *TeamService) FindTeams(ctx context.Context, in FindTeamsInput) (*FindTeamsResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	slugs := matching.ParseSkillNames(in.Skills)
	if len(slugs) == 0 {
		return nil, &ValidationError{Field: "skills", Message: "at least one skill is required"}
	}

	skillIDs, err := s.store.EnsureSkillIDs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skills: %w", err)
	}
	if err := s.store.ReplaceUserSkills(ctx, in.UserID, skillIDs); err != nil {
		return nil, err
	}

	needs, err := s.store.ListTeamNeedsByCompetition(ctx, in.CompetitionID)
	if err != nil {
		return nil, err
	}
	all, top := matching.RankTeams(skillIDs, needs, in.UserID, s.cfg.TeamLimit)

	if len(all) > 0 {
		suggestions := make([]models.MatchSuggestion, 0, len(all))
		for _, m := range all {
			suggestions = append(suggestions, models.MatchSuggestion{TeamID: m.Team.ID, UserID: in.UserID, Score: m.Score})
		}
		if err := s.store.UpsertMatchSuggestions(ctx, suggestions); err != nil {
			return nil, fmt.Errorf("failed to store suggestions: %w", err)
		}
		return &FindTeamsResult{Teams: top, AllMatches: len(all)}, nil
	}

	res := &FindTeamsResult{Teams: []models.TeamMatch{}, NoTeamFound: true}
	err = s.store.CreateJoinIntent(ctx, models.JoinIntent{
		UserID:        in.UserID,
		CompetitionID: in.CompetitionID,
		DesiredSkills: skillIDs,
		Status:        models.IntentPending,
	})
	if errors.Is(err, repository.ErrAlreadyOnTeam) {
		s.logger.Info("user already has a team, join intent skipped",
			zap.String("user_id", in.UserID.String()),
			zap.String("competition_id", in.CompetitionID.String()),
		)
		return res, nil
	}
	if err != nil {
		s.logger.Warn("failed to record join intent",
			zap.String("user_id", in.UserID.String()),
			zap.String("competition_id", in.CompetitionID.String()),
			zap.Error(err),
		)
		return res, nil
	}
	res.IntentRecorded = true
	s.logger.Info("join intent recorded",
		zap.String("user_id", in.UserID.String()),
		zap.String("competition_id", in.CompetitionID.String()),
	)
	return res, nil
}

// RequestToJoin отправляет заявку на вступление в команду
func (s *TeamService) RequestToJoin(ctx context.Context, userID, teamID uuid.UUID) (*models.TeamJoinRequest, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.CreateJoinRequest(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.TableJoinRequests, realtime.EventInsert, joinRequestRecord(*req, team.OwnerID))
	s.logger.Info("join request sent",
		zap.String("request_id", req.ID.String()),
		zap.String("team_id", teamID.String()),
		zap.String("user_id", userID.String()),
	)
	return req, nil
}

// RespondToInvitation принимает или отклоняет приглашение от имени приглашенного
func (s *TeamService) RespondToInvitation(ctx context.Context, invitationID, userID uuid.UUID, decision models.Decision) (*models.ResolvedInvitation, error) {
	res, err := s.store.ResolveInvitation(ctx, invitationID, userID, decision)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.TableInvitations, realtime.EventDelete, invitationRecord(res.Invitation, res.OwnerID))
	if res.Member != nil {
		s.publish(realtime.TableMembers, realtime.EventInsert, memberRecord(*res.Member, res.OwnerID))
	}
	s.logger.Info("invitation resolved",
		zap.String("invitation_id", invitationID.String()),
		zap.String("team_id", res.Invitation.TeamID.String()),
		zap.String("status", string(res.Invitation.Status)),
	)
	return res, nil
}

// RespondToJoinRequest принимает или отклоняет заявку от имени владельца команды
func (s *TeamService) RespondToJoinRequest(ctx context.Context, requestID, ownerID uuid.UUID, decision models.Decision) (*models.ResolvedJoinRequest, error) {
	res, err := s.store.ResolveJoinRequest(ctx, requestID, ownerID, decision)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.TableJoinRequests, realtime.EventDelete, joinRequestRecord(res.Request, res.OwnerID))
	if res.Member != nil {
		s.publish(realtime.TableMembers, realtime.EventInsert, memberRecord(*res.Member, res.OwnerID))
	}
	s.logger.Info("join request resolved",
		zap.String("request_id", requestID.String()),
		zap.String("team_id", res.Request.TeamID.String()),
		zap.String("status", string(res.Request.Status)),
	)
	return res, nil
}

func (s *TeamService) ListInvitations(ctx context.Context, userID uuid.UUID) ([]models.InvitationView, error) {
	return s.store.ListInvitationsForUser(ctx, userID)
}

func (s *TeamService) ListJoinRequests(ctx context.Context, ownerID uuid.UUID) ([]models.JoinRequestView, error) {
	return s.store.ListJoinRequestsForOwner(ctx, ownerID)
}

func (s *TeamService) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.TeamDetails, error) {
	return s.store.GetTeamDetails(ctx, teamID)
}

// ListTeamSuggestions возвращает сохраненных кандидатов команды, доступно только владельцу
func (s *TeamService) ListTeamSuggestions(ctx context.Context, teamID, actorID uuid.UUID) ([]models.MatchSuggestion, error) {
	if _, err := s.ownedTeam(ctx, teamID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListSuggestionsForTeam(ctx, teamID)
}

func (s *TeamService) ListUserSuggestions(ctx context.Context, userID uuid.UUID) ([]models.MatchSuggestion, error) {
	return s.store.ListSuggestionsForUser(ctx, userID)
}

func (s *TeamService) ownedTeam(ctx context.Context, teamID, actorID uuid.UUID) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.OwnerID != actorID {
		return nil, repository.ErrForbidden
	}
	return team, nil
}

func (s *TeamService) publish(table, eventType string, record map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(realtime.Event{
		Table:      table,
		Type:       eventType,
		Record:     record,
		OccurredAt: time.Now().UTC(),
	})
}

func invitationRecord(inv models.TeamInvitation, ownerID uuid.UUID) map[string]any {
	return map[string]any{
		"id":         inv.ID.String(),
		"team_id":    inv.TeamID.String(),
		"user_id":    inv.UserID.String(),
		"owner_id":   ownerID.String(),
		"status":     string(inv.Status),
		"created_at": inv.CreatedAt,
	}
}

func joinRequestRecord(req models.TeamJoinRequest, ownerID uuid.UUID) map[string]any {
	return map[string]any{
		"id":           req.ID.String(),
		"team_id":      req.TeamID.String(),
		"user_id":      req.UserID.String(),
		"owner_id":     ownerID.String(),
		"status":       string(req.Status),
		"requested_at": req.RequestedAt,
	}
}

func memberRecord(m models.TeamMember, ownerID uuid.UUID) map[string]any {
	return map[string]any{
		"team_id":    m.TeamID.String(),
		"user_id":    m.UserID.String(),
		"owner_id":   ownerID.String(),
		"is_captain": m.IsCaptain,
		"status":     string(m.Status),
	}
}
