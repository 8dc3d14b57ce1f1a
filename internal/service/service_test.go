package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/untibullet/teamfinder/internal/models"
	"github.com/untibullet/teamfinder/internal/realtime"
	"github.com/untibullet/teamfinder/internal/repository"
	"github.com/untibullet/teamfinder/internal/repository/inmem"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(e realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(table, eventType string) []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.Event
	for _, e := range r.events {
		if e.Table == table && e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc    *TeamService
	store  *inmem.Store
	events *recorder
	ctx    context.Context

	competition uuid.UUID
	captain     uuid.UUID
	seeker      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inmem.New()
	events := &recorder{}
	return &fixture{
		svc:         New(store, events, zap.NewNop(), Config{}),
		store:       store,
		events:      events,
		ctx:         context.Background(),
		competition: uuid.New(),
		captain:     uuid.New(),
		seeker:      uuid.New(),
	}
}

func (f *fixture) team(t *testing.T, skills string) *models.Team {
	t.Helper()
	team, err := f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "Alpha"})
	require.NoError(t, err)
	if skills != "" {
		_, err = f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: team.ID, ActorID: f.captain, Skills: skills})
		require.NoError(t, err)
	}
	return team
}

func TestCreateTeam_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input CreateTeamInput
		field string
	}{
		{"blank name", CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "   "}, "name"},
		{"long name", CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: strings.Repeat("a", 101)}, "name"},
		{"no competition", CreateTeamInput{OwnerID: f.captain, Name: "Alpha"}, "competition_id"},
		{"no owner", CreateTeamInput{CompetitionID: f.competition, Name: "Alpha"}, "owner_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTeam(f.ctx, tt.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateTeam_TrimsNameAndAddsCaptain(t *testing.T) {
	f := newFixture(t)

	team, err := f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "  Alpha  "})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", team.Name)

	details, err := f.svc.GetTeam(f.ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, details.Members, 1)
	assert.Equal(t, f.captain, details.Members[0].UserID)
	assert.True(t, details.Members[0].IsCaptain)
}

func TestFindTeams_NoMatchRecordsIntent(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "React, SQL"})
	require.NoError(t, err)
	assert.True(t, res.NoTeamFound)
	assert.True(t, res.IntentRecorded)
	assert.Empty(t, res.Teams)

	intents, err := f.store.ListPendingIntents(f.ctx, f.competition)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, f.seeker, intents[0].UserID)

	skills, err := f.store.GetUserSkills(f.ctx, f.seeker)
	require.NoError(t, err)
	assert.Len(t, skills, 2)
}

func TestFindTeams_ScoresTeamNeeds(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "react, node")

	res, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "React, SQL"})
	require.NoError(t, err)
	assert.False(t, res.NoTeamFound)
	require.Len(t, res.Teams, 1)
	assert.Equal(t, team.ID, res.Teams[0].Team.ID)
	assert.InDelta(t, 0.5, res.Teams[0].Score, 1e-9)

	suggestions, err := f.svc.ListUserSuggestions(f.ctx, f.seeker)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, team.ID, suggestions[0].TeamID)

	intents, err := f.store.ListPendingIntents(f.ctx, f.competition)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestFindTeams_SkipsOwnTeam(t *testing.T) {
	f := newFixture(t)
	f.team(t, "go")

	res, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.captain, CompetitionID: f.competition, Skills: "go"})
	require.NoError(t, err)
	assert.True(t, res.NoTeamFound)
	assert.False(t, res.IntentRecorded)
}

func TestFindTeams_PlacedUserIsNotCandidate(t *testing.T) {
	f := newFixture(t)

	// seeker ждет команду, затем сам собирает свою
	_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "go"})
	require.NoError(t, err)
	_, err = f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.seeker, Name: "Beta"})
	require.NoError(t, err)

	res, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "go"})
	require.NoError(t, err)
	assert.True(t, res.NoTeamFound)
	assert.False(t, res.IntentRecorded)

	intents, err := f.store.ListPendingIntents(f.ctx, f.competition)
	require.NoError(t, err)
	assert.Empty(t, intents)

	alpha, err := f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "Alpha"})
	require.NoError(t, err)
	needs, err := f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: alpha.ID, ActorID: f.captain, Skills: "go"})
	require.NoError(t, err)
	assert.Empty(t, needs.Candidates)
	assert.Equal(t, models.TeamPending, needs.TeamStatus)
}

func TestFindTeams_RequiresSkills(t *testing.T) {
	f := newFixture(t)

	for _, skills := range []string{"", " , ,"} {
		_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: skills})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "skills %q", skills)
		assert.Equal(t, "skills", ve.Field)
	}
}

type failingIntents struct {
	repository.Store
}

func (failingIntents) CreateJoinIntent(context.Context, models.JoinIntent) error {
	return errors.New("connection reset")
}

func TestFindTeams_IntentFailureIsSoft(t *testing.T) {
	svc := New(failingIntents{Store: inmem.New()}, nil, zap.NewNop(), Config{})

	res, err := svc.FindTeams(context.Background(), FindTeamsInput{UserID: uuid.New(), CompetitionID: uuid.New(), Skills: "rust"})
	require.NoError(t, err)
	assert.True(t, res.NoTeamFound)
	assert.False(t, res.IntentRecorded)
}

func TestDeclareNeeds_FindsWaitingSeeker(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "React, SQL"})
	require.NoError(t, err)

	team, err := f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "Alpha"})
	require.NoError(t, err)

	res, err := f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: team.ID, ActorID: f.captain, NeededRole: " frontend ", Skills: "react, node"})
	require.NoError(t, err)
	require.NotNil(t, res.Need.NeededRole)
	assert.Equal(t, "frontend", *res.Need.NeededRole)
	assert.Len(t, res.Need.NeededSkills, 2)
	assert.Equal(t, models.TeamOpen, res.TeamStatus)
	assert.Equal(t, 1, res.AllMatches)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, f.seeker, res.Candidates[0].UserID)
	assert.InDelta(t, 0.5, res.Candidates[0].Score, 1e-9)

	suggestions, err := f.svc.ListTeamSuggestions(f.ctx, team.ID, f.captain)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, f.seeker, suggestions[0].UserID)
}

func TestDeclareNeeds_NoCandidatesMarksPending(t *testing.T) {
	f := newFixture(t)
	team, err := f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: f.captain, Name: "Alpha"})
	require.NoError(t, err)

	res, err := f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: team.ID, ActorID: f.captain, Skills: "haskell"})
	require.NoError(t, err)
	assert.Equal(t, models.TeamPending, res.TeamStatus)
	assert.Empty(t, res.Candidates)
	assert.Nil(t, res.Need.NeededRole)

	got, err := f.store.GetTeam(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeamPending, got.Status)
}

func TestSearchCandidates_UsesStoredNeed(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "go, sql")

	_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: uuid.New(), Skills: "go"})
	require.NoError(t, err)
	late := uuid.New()
	_, err = f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: late, CompetitionID: f.competition, Skills: "python"})
	require.NoError(t, err)

	res, err := f.svc.SearchCandidates(f.ctx, team.ID, f.captain)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)

	require.NoError(t, f.store.CreateJoinIntent(f.ctx, models.JoinIntent{
		UserID: f.seeker, CompetitionID: f.competition, DesiredSkills: mustSkills(t, f, "go"), Status: models.IntentPending,
	}))
	res, err = f.svc.SearchCandidates(f.ctx, team.ID, f.captain)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, models.TeamOpen, res.TeamStatus)
}

func mustSkills(t *testing.T, f *fixture, names ...string) []int64 {
	t.Helper()
	ids, err := f.store.EnsureSkillIDs(f.ctx, names)
	require.NoError(t, err)
	return ids
}

func TestOwnerOnlyOperations(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "")
	stranger := uuid.New()

	_, err := f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: team.ID, ActorID: stranger, Skills: "go"})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.SearchCandidates(f.ctx, team.ID, stranger)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.SendInvitations(f.ctx, SendInvitationsInput{TeamID: team.ID, ActorID: stranger, UserIDs: []uuid.UUID{f.seeker}})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.InviteUser(f.ctx, team.ID, stranger, f.seeker)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.RegisterTeam(f.ctx, team.ID, stranger)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.ListTeamSuggestions(f.ctx, team.ID, stranger)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.svc.DeclareNeeds(f.ctx, DeclareNeedsInput{TeamID: uuid.New(), ActorID: f.captain, Skills: "go"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendInvitations_Outcomes(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "go")

	_, err := f.svc.SendInvitations(f.ctx, SendInvitationsInput{TeamID: team.ID, ActorID: f.captain})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	outcomes, err := f.svc.SendInvitations(f.ctx, SendInvitationsInput{
		TeamID:  team.ID,
		ActorID: f.captain,
		UserIDs: []uuid.UUID{f.seeker, f.seeker, f.captain},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, InviteSent, outcomes[0].Status)
	require.NotNil(t, outcomes[0].Invitation)
	assert.Equal(t, InviteAlreadyMember, outcomes[1].Status)

	outcomes, err = f.svc.SendInvitations(f.ctx, SendInvitationsInput{TeamID: team.ID, ActorID: f.captain, UserIDs: []uuid.UUID{f.seeker}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, InviteAlreadyPending, outcomes[0].Status)

	_, err = f.svc.InviteUser(f.ctx, team.ID, f.captain, f.seeker)
	assert.ErrorIs(t, err, repository.ErrInvitePending)

	rival := uuid.New()
	_, err = f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: rival, Name: "Beta"})
	require.NoError(t, err)
	outcomes, err = f.svc.SendInvitations(f.ctx, SendInvitationsInput{TeamID: team.ID, ActorID: f.captain, UserIDs: []uuid.UUID{rival}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, InviteAlreadyOnTeam, outcomes[0].Status)
	assert.Nil(t, outcomes[0].Invitation)

	inserted := f.events.of(realtime.TableInvitations, realtime.EventInsert)
	require.Len(t, inserted, 1)
	assert.Equal(t, f.seeker.String(), inserted[0].Record["user_id"])
	assert.Equal(t, f.captain.String(), inserted[0].Record["owner_id"])
	assert.Equal(t, team.ID.String(), inserted[0].Record["team_id"])
}

func TestRespondToInvitation_Accept(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "go"})
	require.NoError(t, err)
	team := f.team(t, "go")

	inv, err := f.svc.InviteUser(f.ctx, team.ID, f.captain, f.seeker)
	require.NoError(t, err)

	views, err := f.svc.ListInvitations(f.ctx, f.seeker)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Alpha", views[0].TeamName)

	_, err = f.svc.RespondToInvitation(f.ctx, inv.ID, f.captain, models.DecisionAccept)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	res, err := f.svc.RespondToInvitation(f.ctx, inv.ID, f.seeker, models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, res.Invitation.Status)
	require.NotNil(t, res.Member)
	assert.Equal(t, f.seeker, res.Member.UserID)

	details, err := f.svc.GetTeam(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Len(t, details.Members, 2)

	views, err = f.svc.ListInvitations(f.ctx, f.seeker)
	require.NoError(t, err)
	assert.Empty(t, views)

	intents, err := f.store.ListPendingIntents(f.ctx, f.competition)
	require.NoError(t, err)
	assert.Empty(t, intents)

	regs := f.store.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, team.ID, regs[0].TeamID)

	deleted := f.events.of(realtime.TableInvitations, realtime.EventDelete)
	require.Len(t, deleted, 1)
	assert.Equal(t, string(models.StatusAccepted), deleted[0].Record["status"])
	assert.Len(t, f.events.of(realtime.TableMembers, realtime.EventInsert), 1)

	_, err = f.svc.RespondToInvitation(f.ctx, inv.ID, f.seeker, models.DecisionAccept)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRespondToInvitation_Reject(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "go")

	inv, err := f.svc.InviteUser(f.ctx, team.ID, f.captain, f.seeker)
	require.NoError(t, err)

	_, err = f.svc.RespondToInvitation(f.ctx, inv.ID, f.seeker, models.Decision("maybe"))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	res, err := f.svc.RespondToInvitation(f.ctx, inv.ID, f.seeker, models.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Invitation.Status)
	assert.Nil(t, res.Member)

	details, err := f.svc.GetTeam(f.ctx, team.ID)
	require.NoError(t, err)
	assert.Len(t, details.Members, 1)
	assert.Empty(t, f.events.of(realtime.TableMembers, realtime.EventInsert))

	_, err = f.svc.InviteUser(f.ctx, team.ID, f.captain, f.seeker)
	assert.NoError(t, err)
}

func TestJoinRequestFlow(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "go")

	_, err := f.svc.RequestToJoin(f.ctx, f.seeker, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.RequestToJoin(f.ctx, f.captain, team.ID)
	assert.ErrorIs(t, err, repository.ErrAlreadyMember)

	rival := uuid.New()
	_, err = f.svc.CreateTeam(f.ctx, CreateTeamInput{CompetitionID: f.competition, OwnerID: rival, Name: "Beta"})
	require.NoError(t, err)
	_, err = f.svc.RequestToJoin(f.ctx, rival, team.ID)
	assert.ErrorIs(t, err, repository.ErrAlreadyOnTeam)

	req, err := f.svc.RequestToJoin(f.ctx, f.seeker, team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)

	_, err = f.svc.RequestToJoin(f.ctx, f.seeker, team.ID)
	assert.ErrorIs(t, err, repository.ErrRequestPending)

	inserted := f.events.of(realtime.TableJoinRequests, realtime.EventInsert)
	require.Len(t, inserted, 1)
	assert.Equal(t, f.captain.String(), inserted[0].Record["owner_id"])

	views, err := f.svc.ListJoinRequests(f.ctx, f.captain)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Alpha", views[0].TeamName)

	_, err = f.svc.RespondToJoinRequest(f.ctx, req.ID, f.seeker, models.DecisionAccept)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	res, err := f.svc.RespondToJoinRequest(f.ctx, req.ID, f.captain, models.DecisionAccept)
	require.NoError(t, err)
	require.NotNil(t, res.Member)
	assert.Equal(t, f.seeker, res.Member.UserID)

	deleted := f.events.of(realtime.TableJoinRequests, realtime.EventDelete)
	require.Len(t, deleted, 1)
	assert.Equal(t, f.seeker.String(), deleted[0].Record["user_id"])
	assert.Len(t, f.events.of(realtime.TableMembers, realtime.EventInsert), 1)

	views, err = f.svc.ListJoinRequests(f.ctx, f.captain)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRegisterTeam_Idempotent(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "")

	first, err := f.svc.RegisterTeam(f.ctx, team.ID, f.captain)
	require.NoError(t, err)
	second, err := f.svc.RegisterTeam(f.ctx, team.ID, f.captain)
	require.NoError(t, err)

	assert.Equal(t, models.RegistrationRegistered, second.Status)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Len(t, f.store.Registrations(), 1)
}

func TestMutualVisibility(t *testing.T) {
	f := newFixture(t)
	team := f.team(t, "react, node")

	_, err := f.svc.FindTeams(f.ctx, FindTeamsInput{UserID: f.seeker, CompetitionID: f.competition, Skills: "React, SQL"})
	require.NoError(t, err)

	forTeam, err := f.svc.ListTeamSuggestions(f.ctx, team.ID, f.captain)
	require.NoError(t, err)
	forUser, err := f.svc.ListUserSuggestions(f.ctx, f.seeker)
	require.NoError(t, err)

	require.Len(t, forTeam, 1)
	require.Len(t, forUser, 1)
	assert.Equal(t, forTeam[0], forUser[0])
	assert.InDelta(t, 0.5, forUser[0].Score, 1e-9)
}
