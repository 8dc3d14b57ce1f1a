package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/untibullet/teamfinder/internal/models"
)

// membershipExists проверяет, состоит ли пользователь в команде
func membershipExists(ctx context.Context, q querier, teamID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)`,
		teamID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// onTeamInCompetition проверяет, состоит ли пользователь в какой-либо команде соревнования.
// Условие совпадает с индексом team_members_one_team_per_competition.
func onTeamInCompetition(ctx context.Context, q querier, userID, competitionID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM team_members
            WHERE competition_id = $1 AND user_id = $2 AND status IN ($3, $4)
        )
    `, competitionID, userID, models.MemberAccepted, models.MemberActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check competition membership: %w", err)
	}
	return exists, nil
}

// insertMember добавляет участника, принятого по приглашению или заявке
func insertMember(ctx context.Context, q querier, teamID, userID, competitionID uuid.UUID) (*models.TeamMember, error) {
	m := models.TeamMember{TeamID: teamID, UserID: userID, Status: models.MemberAccepted}
	err := q.QueryRow(ctx, `
        INSERT INTO team_members (team_id, user_id, competition_id, is_captain, status)
        VALUES ($1, $2, $3, FALSE, $4)
        RETURNING joined_at
    `, teamID, userID, competitionID, m.Status).Scan(&m.JoinedAt)
	if err != nil {
		return nil, memberInsertError(err)
	}
	return &m, nil
}

func upsertRegistration(ctx context.Context, q querier, teamID, competitionID uuid.UUID) (*models.TeamRegistration, error) {
	var reg models.TeamRegistration
	err := q.QueryRow(ctx, `
        INSERT INTO team_registrations (team_id, competition_id, status)
        VALUES ($1, $2, $3)
        ON CONFLICT (team_id, competition_id) DO UPDATE SET status = excluded.status
        RETURNING team_id, competition_id, status, registered_at
    `, teamID, competitionID, models.RegistrationRegistered).Scan(
		&reg.TeamID, &reg.CompetitionID, &reg.Status, &reg.RegisteredAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert registration: %w", err)
	}
	return &reg, nil
}

// checkJoinable отсекает пользователей, которых нельзя добавить в команду
func checkJoinable(ctx context.Context, q querier, team *models.Team, userID uuid.UUID) error {
	member, err := membershipExists(ctx, q, team.ID, userID)
	if err != nil {
		return err
	}
	if member {
		return ErrAlreadyMember
	}
	placed, err := onTeamInCompetition(ctx, q, userID, team.CompetitionID)
	if err != nil {
		return err
	}
	if placed {
		return ErrAlreadyOnTeam
	}
	return nil
}

// UpsertRegistration регистрирует команду на соревнование (идемпотентно)
func (r *Repository) UpsertRegistration(ctx context.Context, teamID, competitionID uuid.UUID) (*models.TeamRegistration, error) {
	return upsertRegistration(ctx, r.pool, teamID, competitionID)
}

// CreateInvitation создает приглашение, если нет ожидающего и пользователь еще не в команде
func (r *Repository) CreateInvitation(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamInvitation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	team, err := getTeam(ctx, tx, teamID, false)
	if err != nil {
		return nil, err
	}
	if err := checkJoinable(ctx, tx, team, userID); err != nil {
		return nil, err
	}

	inv := models.TeamInvitation{
		ID:     uuid.New(),
		TeamID: teamID,
		UserID: userID,
		Status: models.StatusPending,
	}
	err = tx.QueryRow(ctx, `
        INSERT INTO team_invitations (id, team_id, user_id, status)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at
    `, inv.ID, inv.TeamID, inv.UserID, inv.Status).Scan(&inv.CreatedAt)
	if err != nil {
		// Повторное приглашение ловит частичный уникальный индекс
		if name, ok := uniqueConstraint(err); ok && name == constraintInvitePending {
			return nil, ErrInvitePending
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &inv, nil
}

// ResolveInvitation принимает или отклоняет приглашение одной транзакцией.
// При принятии пользователь добавляется в команду, его намерение удаляется,
// команда регистрируется на соревнование. Строка приглашения удаляется в обоих случаях.
func (r *Repository) ResolveInvitation(ctx context.Context, invitationID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedInvitation, error) {
	target, err := decision.Target()
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var res models.ResolvedInvitation
	inv := &res.Invitation
	err = tx.QueryRow(ctx, `
        SELECT i.id, i.team_id, i.user_id, i.status, i.created_at, t.competition_id, t.owner_id
        FROM team_invitations i
        JOIN teams t ON t.id = i.team_id
        WHERE i.id = $1
        FOR UPDATE OF i
    `, invitationID).Scan(&inv.ID, &inv.TeamID, &inv.UserID, &inv.Status, &inv.CreatedAt, &res.CompetitionID, &res.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if inv.UserID != actorID {
		return nil, ErrForbidden
	}
	if inv.Status, err = inv.Status.Transition(target); err != nil {
		return nil, err
	}

	if target == models.StatusAccepted {
		if res.Member, err = insertMember(ctx, tx, inv.TeamID, inv.UserID, res.CompetitionID); err != nil {
			return nil, err
		}
		if err := deleteJoinIntent(ctx, tx, inv.UserID, res.CompetitionID); err != nil {
			return nil, err
		}
		if _, err := upsertRegistration(ctx, tx, inv.TeamID, res.CompetitionID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM team_invitations WHERE id = $1`, inv.ID); err != nil {
		return nil, fmt.Errorf("failed to delete invitation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &res, nil
}

// ListInvitationsForUser получает приглашения пользователя с названиями команд
func (r *Repository) ListInvitationsForUser(ctx context.Context, userID uuid.UUID) ([]models.InvitationView, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT i.id, i.team_id, i.user_id, i.status, i.created_at, t.name
        FROM team_invitations i
        JOIN teams t ON t.id = i.team_id
        WHERE i.user_id = $1
        ORDER BY i.created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invitations: %w", err)
	}
	defer rows.Close()

	invitations := []models.InvitationView{}
	for rows.Next() {
		var v models.InvitationView
		if err := rows.Scan(&v.ID, &v.TeamID, &v.UserID, &v.Status, &v.CreatedAt, &v.TeamName); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, v)
	}
	return invitations, rows.Err()
}

// CreateJoinRequest создает заявку на вступление и сразу регистрирует команду на соревнование
func (r *Repository) CreateJoinRequest(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamJoinRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	team, err := getTeam(ctx, tx, teamID, false)
	if err != nil {
		return nil, err
	}

	if err := checkJoinable(ctx, tx, team, userID); err != nil {
		return nil, err
	}

	req := models.TeamJoinRequest{
		ID:     uuid.New(),
		TeamID: teamID,
		UserID: userID,
		Status: models.StatusPending,
	}
	err = tx.QueryRow(ctx, `
        INSERT INTO team_join_requests (id, team_id, user_id, status)
        VALUES ($1, $2, $3, $4)
        RETURNING requested_at
    `, req.ID, req.TeamID, req.UserID, req.Status).Scan(&req.RequestedAt)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == constraintJoinReqPending {
			return nil, ErrRequestPending
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	if _, err := upsertRegistration(ctx, tx, teamID, team.CompetitionID); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &req, nil
}

// ResolveJoinRequest принимает или отклоняет заявку; решение принимает только владелец команды
func (r *Repository) ResolveJoinRequest(ctx context.Context, requestID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedJoinRequest, error) {
	target, err := decision.Target()
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var res models.ResolvedJoinRequest
	req := &res.Request
	err = tx.QueryRow(ctx, `
        SELECT jr.id, jr.team_id, jr.user_id, jr.status, jr.requested_at, t.competition_id, t.owner_id
        FROM team_join_requests jr
        JOIN teams t ON t.id = jr.team_id
        WHERE jr.id = $1
        FOR UPDATE OF jr
    `, requestID).Scan(&req.ID, &req.TeamID, &req.UserID, &req.Status, &req.RequestedAt, &res.CompetitionID, &res.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}

	if res.OwnerID != actorID {
		return nil, ErrForbidden
	}
	if req.Status, err = req.Status.Transition(target); err != nil {
		return nil, err
	}

	if target == models.StatusAccepted {
		if res.Member, err = insertMember(ctx, tx, req.TeamID, req.UserID, res.CompetitionID); err != nil {
			return nil, err
		}
		if err := deleteJoinIntent(ctx, tx, req.UserID, res.CompetitionID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM team_join_requests WHERE id = $1`, req.ID); err != nil {
		return nil, fmt.Errorf("failed to delete join request: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &res, nil
}

// ListJoinRequestsForOwner получает заявки во все команды владельца, новые первыми
func (r *Repository) ListJoinRequestsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.JoinRequestView, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT jr.id, jr.team_id, jr.user_id, jr.status, jr.requested_at, t.name, t.owner_id
        FROM team_join_requests jr
        JOIN teams t ON t.id = jr.team_id
        WHERE t.owner_id = $1
        ORDER BY jr.requested_at DESC
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get join requests: %w", err)
	}
	defer rows.Close()

	requests := []models.JoinRequestView{}
	for rows.Next() {
		var v models.JoinRequestView
		if err := rows.Scan(&v.ID, &v.TeamID, &v.UserID, &v.Status, &v.RequestedAt, &v.TeamName, &v.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, v)
	}
	return requests, rows.Err()
}
