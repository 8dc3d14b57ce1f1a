// Package inmem реализует хранилище в памяти с семантикой PostgreSQL-репозитория.
// Одна блокировка на все таблицы делает каждую операцию атомарной.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/untibullet/teamfinder/internal/models"
	"github.com/untibullet/teamfinder/internal/repository"
)

type pairKey struct {
	a, b uuid.UUID
}

type memberRow struct {
	models.TeamMember
	competitionID uuid.UUID
	seq           uint64
}

type suggestionRow struct {
	models.MatchSuggestion
	seq uint64
}

type invitationRow struct {
	models.TeamInvitation
	seq uint64
}

type joinRequestRow struct {
	models.TeamJoinRequest
	seq uint64
}

// Store реализует repository.Store в памяти
type Store struct {
	mu  sync.Mutex
	seq uint64
	now func() time.Time

	skills     map[string]int64
	nextSkill  int64
	userSkills map[uuid.UUID][]int64

	teams map[uuid.UUID]models.Team
	needs map[uuid.UUID]models.TeamNeed

	// ключи: members и suggestions по (team, user), intents по (user, competition),
	// registrations по (team, competition)
	members       map[pairKey]memberRow
	intents       map[pairKey]models.JoinIntent
	suggestions   map[pairKey]suggestionRow
	invitations   map[uuid.UUID]invitationRow
	joinRequests  map[uuid.UUID]joinRequestRow
	registrations map[pairKey]models.TeamRegistration
}

var _ repository.Store = (*Store)(nil)

// New создает пустое хранилище
func New() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		skills:        make(map[string]int64),
		userSkills:    make(map[uuid.UUID][]int64),
		teams:         make(map[uuid.UUID]models.Team),
		needs:         make(map[uuid.UUID]models.TeamNeed),
		members:       make(map[pairKey]memberRow),
		intents:       make(map[pairKey]models.JoinIntent),
		suggestions:   make(map[pairKey]suggestionRow),
		invitations:   make(map[uuid.UUID]invitationRow),
		joinRequests:  make(map[uuid.UUID]joinRequestRow),
		registrations: make(map[pairKey]models.TeamRegistration),
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

func clone(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

func (s *Store) EnsureSkillIDs(_ context.Context, slugs []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(slugs))
	for _, slug := range slugs {
		id, ok := s.skills[slug]
		if !ok {
			s.nextSkill++
			id = s.nextSkill
			s.skills[slug] = id
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) ReplaceUserSkills(_ context.Context, userID uuid.UUID, skillIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{}, len(skillIDs))
	ids := make([]int64, 0, len(skillIDs))
	for _, id := range skillIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	s.userSkills[userID] = ids
	return nil
}

func (s *Store) GetUserSkills(_ context.Context, userID uuid.UUID) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.userSkills[userID]), nil
}

// hasTeamInCompetition проверяет ограничение "одна команда на соревнование"
func (s *Store) hasTeamInCompetition(userID, competitionID uuid.UUID) bool {
	for _, m := range s.members {
		if m.UserID == userID && m.competitionID == competitionID && m.Status.Counts() {
			return true
		}
	}
	return false
}

func (s *Store) insertMember(teamID, userID, competitionID uuid.UUID, captain bool) (*models.TeamMember, error) {
	key := pairKey{teamID, userID}
	if _, ok := s.members[key]; ok {
		return nil, repository.ErrAlreadyMember
	}
	if s.hasTeamInCompetition(userID, competitionID) {
		return nil, repository.ErrAlreadyOnTeam
	}
	m := models.TeamMember{
		TeamID:    teamID,
		UserID:    userID,
		IsCaptain: captain,
		Status:    models.MemberAccepted,
		JoinedAt:  s.now(),
	}
	s.members[key] = memberRow{TeamMember: m, competitionID: competitionID, seq: s.next()}
	return &m, nil
}

func (s *Store) checkJoinable(team models.Team, userID uuid.UUID) error {
	if _, ok := s.members[pairKey{team.ID, userID}]; ok {
		return repository.ErrAlreadyMember
	}
	if s.hasTeamInCompetition(userID, team.CompetitionID) {
		return repository.ErrAlreadyOnTeam
	}
	return nil
}

func (s *Store) CreateTeam(_ context.Context, team models.Team) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	if _, ok := s.teams[team.ID]; ok {
		return nil, repository.ErrAlreadyExists
	}
	if s.hasTeamInCompetition(team.OwnerID, team.CompetitionID) {
		return nil, repository.ErrAlreadyOnTeam
	}
	team.Status = models.TeamOpen
	team.CreatedAt = s.now()

	s.teams[team.ID] = team
	if _, err := s.insertMember(team.ID, team.OwnerID, team.CompetitionID, true); err != nil {
		delete(s.teams, team.ID)
		return nil, err
	}
	delete(s.intents, pairKey{team.OwnerID, team.CompetitionID})
	return &team, nil
}

func (s *Store) GetTeam(_ context.Context, teamID uuid.UUID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *Store) GetTeamDetails(_ context.Context, teamID uuid.UUID) (*models.TeamDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	var rows []memberRow
	for _, m := range s.members {
		if m.TeamID == teamID {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].IsCaptain != rows[j].IsCaptain {
			return rows[i].IsCaptain
		}
		return rows[i].seq < rows[j].seq
	})

	details := &models.TeamDetails{Team: t, Members: make([]models.TeamMember, 0, len(rows))}
	for _, r := range rows {
		details.Members = append(details.Members, r.TeamMember)
	}
	if need, ok := s.needs[teamID]; ok {
		need.NeededSkills = clone(need.NeededSkills)
		details.Need = &need
	}
	return details, nil
}

func (s *Store) UpdateTeamStatus(_ context.Context, teamID uuid.UUID, status models.TeamStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	next, err := t.Status.Transition(status)
	if err != nil {
		return err
	}
	t.Status = next
	s.teams[teamID] = t
	return nil
}

func (s *Store) UpsertTeamNeed(_ context.Context, need models.TeamNeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[need.TeamID]; !ok {
		return repository.ErrNotFound
	}
	need.NeededSkills = clone(need.NeededSkills)
	s.needs[need.TeamID] = need
	return nil
}

func (s *Store) ListTeamNeedsByCompetition(_ context.Context, competitionID uuid.UUID) ([]models.TeamNeedWithTeam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TeamNeedWithTeam
	for teamID, need := range s.needs {
		t := s.teams[teamID]
		if t.CompetitionID != competitionID {
			continue
		}
		need.NeededSkills = clone(need.NeededSkills)
		out = append(out, models.TeamNeedWithTeam{TeamNeed: need, Team: t})
	}
	return out, nil
}

func (s *Store) ListPendingIntents(_ context.Context, competitionID uuid.UUID) ([]models.JoinIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.JoinIntent
	for _, in := range s.intents {
		if in.CompetitionID != competitionID || in.Status != models.IntentPending {
			continue
		}
		if s.hasTeamInCompetition(in.UserID, competitionID) {
			continue
		}
		in.DesiredSkills = clone(in.DesiredSkills)
		out = append(out, in)
	}
	return out, nil
}

func (s *Store) CreateJoinIntent(_ context.Context, intent models.JoinIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasTeamInCompetition(intent.UserID, intent.CompetitionID) {
		return repository.ErrAlreadyOnTeam
	}
	intent.DesiredSkills = clone(intent.DesiredSkills)
	intent.Status = models.IntentPending
	intent.CreatedAt = s.now()
	s.intents[pairKey{intent.UserID, intent.CompetitionID}] = intent
	return nil
}

func (s *Store) DeleteJoinIntent(_ context.Context, userID, competitionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.intents, pairKey{userID, competitionID})
	return nil
}

func (s *Store) UpsertMatchSuggestions(_ context.Context, suggestions []models.MatchSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sg := range suggestions {
		if _, ok := s.teams[sg.TeamID]; !ok {
			return repository.ErrNotFound
		}
	}
	for _, sg := range suggestions {
		s.suggestions[pairKey{sg.TeamID, sg.UserID}] = suggestionRow{MatchSuggestion: sg, seq: s.next()}
	}
	return nil
}

func (s *Store) listSuggestions(match func(models.MatchSuggestion) bool) []models.MatchSuggestion {
	var rows []suggestionRow
	for _, sg := range s.suggestions {
		if match(sg.MatchSuggestion) {
			rows = append(rows, sg)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]models.MatchSuggestion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.MatchSuggestion)
	}
	return out
}

func (s *Store) ListSuggestionsForTeam(_ context.Context, teamID uuid.UUID) ([]models.MatchSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSuggestions(func(sg models.MatchSuggestion) bool { return sg.TeamID == teamID }), nil
}

func (s *Store) ListSuggestionsForUser(_ context.Context, userID uuid.UUID) ([]models.MatchSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSuggestions(func(sg models.MatchSuggestion) bool { return sg.UserID == userID }), nil
}

func (s *Store) upsertRegistration(teamID, competitionID uuid.UUID) (*models.TeamRegistration, error) {
	if _, ok := s.teams[teamID]; !ok {
		return nil, repository.ErrNotFound
	}
	key := pairKey{teamID, competitionID}
	reg, ok := s.registrations[key]
	if !ok {
		reg = models.TeamRegistration{TeamID: teamID, CompetitionID: competitionID, RegisteredAt: s.now()}
	}
	reg.Status = models.RegistrationRegistered
	s.registrations[key] = reg
	return &reg, nil
}

func (s *Store) UpsertRegistration(_ context.Context, teamID, competitionID uuid.UUID) (*models.TeamRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertRegistration(teamID, competitionID)
}

// Registrations возвращает все регистрации; используется в тестах
func (s *Store) Registrations() []models.TeamRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.TeamRegistration, 0, len(s.registrations))
	for _, r := range s.registrations {
		out = append(out, r)
	}
	return out
}

func (s *Store) CreateInvitation(_ context.Context, teamID, userID uuid.UUID) (*models.TeamInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := s.checkJoinable(team, userID); err != nil {
		return nil, err
	}
	for _, inv := range s.invitations {
		if inv.TeamID == teamID && inv.UserID == userID && inv.Status == models.StatusPending {
			return nil, repository.ErrInvitePending
		}
	}

	inv := models.TeamInvitation{
		ID:        uuid.New(),
		TeamID:    teamID,
		UserID:    userID,
		Status:    models.StatusPending,
		CreatedAt: s.now(),
	}
	s.invitations[inv.ID] = invitationRow{TeamInvitation: inv, seq: s.next()}
	return &inv, nil
}

func (s *Store) ResolveInvitation(_ context.Context, invitationID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedInvitation, error) {
	target, err := decision.Target()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.invitations[invitationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	team := s.teams[row.TeamID]
	res := &models.ResolvedInvitation{
		Invitation:    row.TeamInvitation,
		CompetitionID: team.CompetitionID,
		OwnerID:       team.OwnerID,
	}

	if row.UserID != actorID {
		return nil, repository.ErrForbidden
	}
	if res.Invitation.Status, err = row.Status.Transition(target); err != nil {
		return nil, err
	}

	if target == models.StatusAccepted {
		if res.Member, err = s.insertMember(row.TeamID, row.UserID, team.CompetitionID, false); err != nil {
			return nil, err
		}
		delete(s.intents, pairKey{row.UserID, team.CompetitionID})
		if _, err := s.upsertRegistration(row.TeamID, team.CompetitionID); err != nil {
			return nil, err
		}
	}

	delete(s.invitations, invitationID)
	return res, nil
}

func (s *Store) ListInvitationsForUser(_ context.Context, userID uuid.UUID) ([]models.InvitationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []invitationRow
	for _, inv := range s.invitations {
		if inv.UserID == userID {
			rows = append(rows, inv)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	out := make([]models.InvitationView, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.InvitationView{TeamInvitation: r.TeamInvitation, TeamName: s.teams[r.TeamID].Name})
	}
	return out, nil
}

func (s *Store) CreateJoinRequest(_ context.Context, teamID, userID uuid.UUID) (*models.TeamJoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := s.checkJoinable(team, userID); err != nil {
		return nil, err
	}
	for _, jr := range s.joinRequests {
		if jr.TeamID == teamID && jr.UserID == userID && jr.Status == models.StatusPending {
			return nil, repository.ErrRequestPending
		}
	}

	req := models.TeamJoinRequest{
		ID:          uuid.New(),
		TeamID:      teamID,
		UserID:      userID,
		Status:      models.StatusPending,
		RequestedAt: s.now(),
	}
	s.joinRequests[req.ID] = joinRequestRow{TeamJoinRequest: req, seq: s.next()}
	if _, err := s.upsertRegistration(teamID, team.CompetitionID); err != nil {
		delete(s.joinRequests, req.ID)
		return nil, err
	}
	return &req, nil
}

func (s *Store) ResolveJoinRequest(_ context.Context, requestID, actorID uuid.UUID, decision models.Decision) (*models.ResolvedJoinRequest, error) {
	target, err := decision.Target()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.joinRequests[requestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	team := s.teams[row.TeamID]
	res := &models.ResolvedJoinRequest{
		Request:       row.TeamJoinRequest,
		CompetitionID: team.CompetitionID,
		OwnerID:       team.OwnerID,
	}

	if team.OwnerID != actorID {
		return nil, repository.ErrForbidden
	}
	if res.Request.Status, err = row.Status.Transition(target); err != nil {
		return nil, err
	}

	if target == models.StatusAccepted {
		if res.Member, err = s.insertMember(row.TeamID, row.UserID, team.CompetitionID, false); err != nil {
			return nil, err
		}
		delete(s.intents, pairKey{row.UserID, team.CompetitionID})
	}

	delete(s.joinRequests, requestID)
	return res, nil
}

func (s *Store) ListJoinRequestsForOwner(_ context.Context, ownerID uuid.UUID) ([]models.JoinRequestView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []joinRequestRow
	for _, jr := range s.joinRequests {
		if s.teams[jr.TeamID].OwnerID == ownerID {
			rows = append(rows, jr)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	out := make([]models.JoinRequestView, 0, len(rows))
	for _, r := range rows {
		t := s.teams[r.TeamID]
		out = append(out, models.JoinRequestView{TeamJoinRequest: r.TeamJoinRequest, TeamName: t.Name, OwnerID: t.OwnerID})
	}
	return out, nil
}
