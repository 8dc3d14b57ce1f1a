package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/untibullet/teamfinder/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrInvitePending     = errors.New("invitation already pending")
	ErrRequestPending    = errors.New("join request already pending")
	ErrAlreadyMember     = errors.New("user is already a team member")
	ErrAlreadyOnTeam     = errors.New("user already has a team in this competition")
	ErrInvalidTransition = models.ErrInvalidTransition
)

// Store описывает хранилище сценария подбора команд.
// Каждый многошаговый переход выполняется атомарно.
type Store interface {
	// EnsureSkillIDs возвращает id навыков в порядке slugs, создавая отсутствующие
	EnsureSkillIDs(ctx context.Context, slugs []string) ([]int64, error)
	// ReplaceUserSkills заменяет набор навыков пользователя целиком
	ReplaceUserSkills(ctx context.Context, userID uuid.UUID, skillIDs []int64) error
	GetUserSkills(ctx context.Context, userID uuid.UUID) ([]int64, error)

	// CreateTeam создает команду вместе с капитаном
	CreateTeam(ctx context.Context, team models.Team) (*models.Team, error)
	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	GetTeamDetails(ctx context.Context, teamID uuid.UUID) (*models.TeamDetails, error)
	UpdateTeamStatus(ctx context.Context, teamID uuid.UUID, status models.TeamStatus) error
	UpsertTeamNeed(ctx context.Context, need models.TeamNeed) error
	ListTeamNeedsByCompetition(ctx context.Context, competitionID uuid.UUID) ([]models.TeamNeedWithTeam, error)

	ListPendingIntents(ctx context.Context, competitionID uuid.UUID) ([]models.JoinIntent, error)
	CreateJoinIntent(ctx context.Context, intent models.JoinIntent) error
	DeleteJoinIntent(ctx context.Context, userID, competitionID uuid.UUID) error

	UpsertMatchSuggestions(ctx context.Context, suggestions []models.MatchSuggestion) error
	ListSuggestionsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.MatchSuggestion, error)
	ListSuggestionsForUser(ctx context.Context, userID uuid.UUID) ([]models.MatchSuggestion, error)

	CreateInvitation(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamInvitation, error)
	ResolveInvitation(ctx context.Context, invitationID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedInvitation, error)
	ListInvitationsForUser(ctx context.Context, userID uuid.UUID) ([]models.InvitationView, error)

	CreateJoinRequest(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamJoinRequest, error)
	ResolveJoinRequest(ctx context.Context, requestID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedJoinRequest, error)
	ListJoinRequestsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.JoinRequestView, error)

	UpsertRegistration(ctx context.Context, teamID, competitionID uuid.UUID) (*models.TeamRegistration, error)
}

var _ Store = (*Repository)(nil)
