// repository/repository.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/untibullet/teamfinder/internal/models"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Имена ограничений, по которым различаются конфликты
const (
	constraintMemberPK       = "team_members_pkey"
	constraintOneTeamPerComp = "team_members_one_team_per_competition"
	constraintInvitePending  = "team_invitations_pending_uniq"
	constraintJoinReqPending = "team_join_requests_pending_uniq"
)

// querier описывает общее подмножество pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository реализует хранилище на PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// uniqueConstraint возвращает имя нарушенного уникального ограничения
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// memberInsertError переводит конфликт вставки участника в доменную ошибку
func memberInsertError(err error) error {
	if name, ok := uniqueConstraint(err); ok {
		switch name {
		case constraintOneTeamPerComp:
			return ErrAlreadyOnTeam
		case constraintMemberPK:
			return ErrAlreadyMember
		}
		return ErrAlreadyExists
	}
	return fmt.Errorf("failed to insert team member: %w", err)
}

// EnsureSkillIDs находит или создает навыки по slug и возвращает их id в исходном порядке
func (r *Repository) EnsureSkillIDs(ctx context.Context, slugs []string) ([]int64, error) {
	if len(slugs) == 0 {
		return []int64{}, nil
	}

	// Одновременные запросы с одинаковыми slug сходятся на одной строке
	_, err := r.pool.Exec(ctx, `
        INSERT INTO skills (slug)
        SELECT DISTINCT unnest($1::text[])
        ON CONFLICT (slug) DO NOTHING
    `, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to insert skills: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, slug FROM skills WHERE slug = ANY($1::text[])`, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to select skills: %w", err)
	}
	defer rows.Close()

	bySlug := make(map[string]int64, len(slugs))
	for rows.Next() {
		var s models.Skill
		if err := rows.Scan(&s.ID, &s.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		bySlug[s.Slug] = s.ID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate skills: %w", err)
	}

	ids := make([]int64, 0, len(slugs))
	for _, slug := range slugs {
		id, ok := bySlug[slug]
		if !ok {
			return nil, fmt.Errorf("skill %q missing after insert: %w", slug, ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReplaceUserSkills удаляет все навыки пользователя и записывает новые
func (r *Repository) ReplaceUserSkills(ctx context.Context, userID uuid.UUID, skillIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_skills WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear user skills: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO user_skills (user_id, skill_id, position)
        SELECT $1, s.id, s.ord
        FROM unnest($2::bigint[]) WITH ORDINALITY AS s(id, ord)
        ON CONFLICT (user_id, skill_id) DO NOTHING
    `, userID, skillIDs)
	if err != nil {
		return fmt.Errorf("failed to insert user skills: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetUserSkills возвращает навыки пользователя в порядке объявления
func (r *Repository) GetUserSkills(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT skill_id FROM user_skills WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user skills: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user skill: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateTeam создает команду и добавляет владельца капитаном в одной транзакции
func (r *Repository) CreateTeam(ctx context.Context, team models.Team) (*models.Team, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	team.Status = models.TeamOpen

	err = tx.QueryRow(ctx, `
        INSERT INTO teams (id, competition_id, owner_id, name, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at
    `, team.ID, team.CompetitionID, team.OwnerID, team.Name, team.Status).Scan(&team.CreatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO team_members (team_id, user_id, competition_id, is_captain, status)
        VALUES ($1, $2, $3, TRUE, $4)
    `, team.ID, team.OwnerID, team.CompetitionID, models.MemberAccepted)
	if err != nil {
		return nil, memberInsertError(err)
	}

	// капитан больше не ищет команду в этом соревновании
	if err := deleteJoinIntent(ctx, tx, team.OwnerID, team.CompetitionID); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &team, nil
}

func getTeam(ctx context.Context, q querier, teamID uuid.UUID, lock bool) (*models.Team, error) {
	query := `SELECT id, competition_id, owner_id, name, status, created_at FROM teams WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t models.Team
	err := q.QueryRow(ctx, query, teamID).Scan(&t.ID, &t.CompetitionID, &t.OwnerID, &t.Name, &t.Status, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

// GetTeam получает команду по ID
func (r *Repository) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return getTeam(ctx, r.pool, teamID, false)
}

// GetTeamDetails получает команду с составом и потребностями
func (r *Repository) GetTeamDetails(ctx context.Context, teamID uuid.UUID) (*models.TeamDetails, error) {
	team, err := r.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
        SELECT team_id, user_id, is_captain, status, joined_at
        FROM team_members
        WHERE team_id = $1
        ORDER BY is_captain DESC, joined_at
    `, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team members: %w", err)
	}
	defer rows.Close()

	members := []models.TeamMember{}
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.IsCaptain, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team members: %w", err)
	}

	details := &models.TeamDetails{Team: *team, Members: members}

	var need models.TeamNeed
	err = r.pool.QueryRow(ctx, `SELECT team_id, needed_role, needed_skills FROM team_needs WHERE team_id = $1`, teamID).
		Scan(&need.TeamID, &need.NeededRole, &need.NeededSkills)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get team need: %w", err)
	default:
		details.Need = &need
	}

	return details, nil
}

// UpdateTeamStatus меняет статус команды по таблице переходов
func (r *Repository) UpdateTeamStatus(ctx context.Context, teamID uuid.UUID, status models.TeamStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	team, err := getTeam(ctx, tx, teamID, true)
	if err != nil {
		return err
	}
	if _, err := team.Status.Transition(status); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE teams SET status = $1, updated_at = NOW() WHERE id = $2`, status, teamID); err != nil {
		return fmt.Errorf("failed to update team status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertTeamNeed создает или обновляет потребности команды
func (r *Repository) UpsertTeamNeed(ctx context.Context, need models.TeamNeed) error {
	skills := need.NeededSkills
	if skills == nil {
		skills = []int64{}
	}
	_, err := r.pool.Exec(ctx, `
        INSERT INTO team_needs (team_id, needed_role, needed_skills)
        VALUES ($1, $2, $3)
        ON CONFLICT (team_id) DO UPDATE
        SET needed_role = excluded.needed_role, needed_skills = excluded.needed_skills, updated_at = NOW()
    `, need.TeamID, need.NeededRole, skills)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to upsert team need: %w", err)
	}
	return nil
}

// ListTeamNeedsByCompetition получает потребности всех команд соревнования
func (r *Repository) ListTeamNeedsByCompetition(ctx context.Context, competitionID uuid.UUID) ([]models.TeamNeedWithTeam, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT n.team_id, n.needed_role, n.needed_skills,
               t.id, t.competition_id, t.owner_id, t.name, t.status, t.created_at
        FROM team_needs n
        JOIN teams t ON t.id = n.team_id
        WHERE t.competition_id = $1
    `, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team needs: %w", err)
	}
	defer rows.Close()

	var needs []models.TeamNeedWithTeam
	for rows.Next() {
		var n models.TeamNeedWithTeam
		if err := rows.Scan(
			&n.TeamID, &n.NeededRole, &n.NeededSkills,
			&n.Team.ID, &n.Team.CompetitionID, &n.Team.OwnerID, &n.Team.Name, &n.Team.Status, &n.Team.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team need: %w", err)
		}
		needs = append(needs, n)
	}
	return needs, rows.Err()
}

// ListPendingIntents получает ожидающие намерения участников соревнования,
// у которых еще нет команды
func (r *Repository) ListPendingIntents(ctx context.Context, competitionID uuid.UUID) ([]models.JoinIntent, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT ji.user_id, ji.competition_id, ji.desired_skills, ji.status, ji.created_at
        FROM join_intents ji
        WHERE ji.competition_id = $1 AND ji.status = $2
          AND NOT EXISTS (
              SELECT 1 FROM team_members m
              WHERE m.competition_id = ji.competition_id AND m.user_id = ji.user_id
                AND m.status IN ($3, $4)
          )
    `, competitionID, models.IntentPending, models.MemberAccepted, models.MemberActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get join intents: %w", err)
	}
	defer rows.Close()

	var intents []models.JoinIntent
	for rows.Next() {
		var in models.JoinIntent
		if err := rows.Scan(&in.UserID, &in.CompetitionID, &in.DesiredSkills, &in.Status, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan join intent: %w", err)
		}
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

// CreateJoinIntent записывает намерение; повторный вызов обновляет навыки.
// Для пользователя, уже состоящего в команде соревнования, возвращает ErrAlreadyOnTeam.
func (r *Repository) CreateJoinIntent(ctx context.Context, intent models.JoinIntent) error {
	placed, err := onTeamInCompetition(ctx, r.pool, intent.UserID, intent.CompetitionID)
	if err != nil {
		return err
	}
	if placed {
		return ErrAlreadyOnTeam
	}

	skills := intent.DesiredSkills
	if skills == nil {
		skills = []int64{}
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO join_intents (user_id, competition_id, desired_skills, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, competition_id) DO UPDATE
        SET desired_skills = excluded.desired_skills, status = excluded.status, created_at = NOW()
    `, intent.UserID, intent.CompetitionID, skills, models.IntentPending)
	if err != nil {
		return fmt.Errorf("failed to create join intent: %w", err)
	}
	return nil
}

// DeleteJoinIntent удаляет намерение пользователя для соревнования
func (r *Repository) DeleteJoinIntent(ctx context.Context, userID, competitionID uuid.UUID) error {
	return deleteJoinIntent(ctx, r.pool, userID, competitionID)
}

func deleteJoinIntent(ctx context.Context, q querier, userID, competitionID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM join_intents WHERE user_id = $1 AND competition_id = $2`, userID, competitionID)
	if err != nil {
		return fmt.Errorf("failed to delete join intent: %w", err)
	}
	return nil
}

// UpsertMatchSuggestions сохраняет результаты подбора пакетом
func (r *Repository) UpsertMatchSuggestions(ctx context.Context, suggestions []models.MatchSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range suggestions {
		batch.Queue(`
            INSERT INTO team_match_suggestions (team_id, user_id, score, premium_boost)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (team_id, user_id) DO UPDATE
            SET score = excluded.score, premium_boost = excluded.premium_boost, updated_at = NOW()
        `, s.TeamID, s.UserID, s.Score, s.PremiumBoost)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert match suggestions: %w", err)
	}
	return nil
}

func (r *Repository) listSuggestions(ctx context.Context, column string, id uuid.UUID) ([]models.MatchSuggestion, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT team_id, user_id, score, premium_boost
        FROM team_match_suggestions
        WHERE `+column+` = $1
        ORDER BY score DESC, updated_at DESC
    `, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []models.MatchSuggestion{}
	for rows.Next() {
		var s models.MatchSuggestion
		if err := rows.Scan(&s.TeamID, &s.UserID, &s.Score, &s.PremiumBoost); err != nil {
			return nil, fmt.Errorf("failed to scan match suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// ListSuggestionsForTeam получает кэш кандидатов команды
func (r *Repository) ListSuggestionsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.MatchSuggestion, error) {
	return r.listSuggestions(ctx, "team_id", teamID)
}

// ListSuggestionsForUser получает кэш рекомендованных команд пользователя
func (r *Repository) ListSuggestionsForUser(ctx context.Context, userID uuid.UUID) ([]models.MatchSuggestion, error) {
	return r.listSuggestions(ctx, "user_id", userID)
}
