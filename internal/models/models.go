// models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill представляет нормализованный навык
type Skill struct {
	ID   int64  `json:"id" db:"id"`
	Slug string `json:"slug" db:"slug"`
}

// Team представляет команду соревнования
type Team struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	CompetitionID uuid.UUID  `json:"competition_id" db:"competition_id"`
	OwnerID       uuid.UUID  `json:"owner_id" db:"owner_id"`
	Name          string     `json:"name" db:"name"`
	Status        TeamStatus `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// TeamNeed описывает требования команды к новым участникам (одна запись на команду)
type TeamNeed struct {
	TeamID       uuid.UUID `json:"team_id" db:"team_id"`
	NeededRole   *string   `json:"needed_role,omitempty" db:"needed_role"`
	NeededSkills []int64   `json:"needed_skills" db:"needed_skills"`
}

// TeamNeedWithTeam объединяет потребность команды вместе с самой командой
type TeamNeedWithTeam struct {
	TeamNeed
	Team Team `json:"team"`
}

// TeamMember представляет участника команды
type TeamMember struct {
	TeamID    uuid.UUID    `json:"team_id" db:"team_id"`
	UserID    uuid.UUID    `json:"user_id" db:"user_id"`
	IsCaptain bool         `json:"is_captain" db:"is_captain"`
	Status    MemberStatus `json:"status" db:"status"`
	JoinedAt  time.Time    `json:"joined_at" db:"joined_at"`
}

// JoinIntent фиксирует участника, для которого пока не нашлось команды
type JoinIntent struct {
	UserID        uuid.UUID    `json:"user_id" db:"user_id"`
	CompetitionID uuid.UUID    `json:"competition_id" db:"competition_id"`
	DesiredSkills []int64      `json:"desired_skills" db:"desired_skills"`
	Status        IntentStatus `json:"status" db:"status"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// MatchSuggestion хранит кэшированный результат сопоставления команды и пользователя
type MatchSuggestion struct {
	TeamID       uuid.UUID `json:"team_id" db:"team_id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Score        float64   `json:"score" db:"score"`
	PremiumBoost bool      `json:"premium_boost" db:"premium_boost"`
}

// TeamInvitation представляет приглашение от капитана кандидату
type TeamInvitation struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	TeamID    uuid.UUID      `json:"team_id" db:"team_id"`
	UserID    uuid.UUID      `json:"user_id" db:"user_id"`
	Status    DecisionStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// TeamJoinRequest представляет заявку кандидата на вступление в команду
type TeamJoinRequest struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TeamID      uuid.UUID      `json:"team_id" db:"team_id"`
	UserID      uuid.UUID      `json:"user_id" db:"user_id"`
	Status      DecisionStatus `json:"status" db:"status"`
	RequestedAt time.Time      `json:"requested_at" db:"requested_at"`
}

// TeamRegistration связывает команду с соревнованием
type TeamRegistration struct {
	TeamID        uuid.UUID          `json:"team_id" db:"team_id"`
	CompetitionID uuid.UUID          `json:"competition_id" db:"competition_id"`
	Status        RegistrationStatus `json:"status" db:"status"`
	RegisteredAt  time.Time          `json:"registered_at" db:"registered_at"`
}

// TeamDetails описывает команду с составом и текущими потребностями
type TeamDetails struct {
	Team    Team         `json:"team"`
	Members []TeamMember `json:"members"`
	Need    *TeamNeed    `json:"need,omitempty"`
}

// InvitationView дополняет приглашение именем команды для списка приглашений
type InvitationView struct {
	TeamInvitation
	TeamName string `json:"team_name"`
}

// JoinRequestView дополняет заявку именем команды для списка заявок владельца
type JoinRequestView struct {
	TeamJoinRequest
	TeamName string    `json:"team_name"`
	OwnerID  uuid.UUID `json:"owner_id"`
}

// CandidateMatch содержит кандидата и его оценку для команды
type CandidateMatch struct {
	UserID uuid.UUID `json:"user_id"`
	Score  float64   `json:"score"`
}

// TeamMatch содержит команду и ее оценку для ищущего участника
type TeamMatch struct {
	Team  Team    `json:"team"`
	Score float64 `json:"score"`
}

// ResolvedInvitation описывает результат решения по приглашению
type ResolvedInvitation struct {
	Invitation    TeamInvitation `json:"invitation"`
	CompetitionID uuid.UUID      `json:"competition_id"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	Member        *TeamMember    `json:"member,omitempty"`
}

// ResolvedJoinRequest описывает результат решения по заявке
type ResolvedJoinRequest struct {
	Request       TeamJoinRequest `json:"request"`
	CompetitionID uuid.UUID       `json:"competition_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Member        *TeamMember     `json:"member,omitempty"`
}
