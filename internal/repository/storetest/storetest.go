// Package storetest содержит общий набор проверок для реализаций repository.Store
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/untibullet/teamfinder/internal/models"
	"github.com/untibullet/teamfinder/internal/repository"
)

// StoreSuite проверяет контракт хранилища. NewStore вызывается перед каждым тестом
// и должен возвращать пустое хранилище.
type StoreSuite struct {
	suite.Suite
	NewStore func(t *testing.T) repository.Store

	store repository.Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore(s.T())
}

func (s *StoreSuite) createTeam(competitionID, ownerID uuid.UUID, name string) *models.Team {
	team, err := s.store.CreateTeam(s.ctx, models.Team{CompetitionID: competitionID, OwnerID: ownerID, Name: name})
	s.Require().NoError(err)
	return team
}

func (s *StoreSuite) TestEnsureSkillIDsStableAndOrdered() {
	first, err := s.store.EnsureSkillIDs(s.ctx, []string{"react", "node"})
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.NotEqual(first[0], first[1])

	second, err := s.store.EnsureSkillIDs(s.ctx, []string{"sql", "react"})
	s.Require().NoError(err)
	s.Equal(first[0], second[1])
	s.NotContains(first, second[0])
}

func (s *StoreSuite) TestEnsureSkillIDsConcurrent() {
	var wg sync.WaitGroup
	results := make([][]int64, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.store.EnsureSkillIDs(s.ctx, []string{"go"})
		}(i)
	}
	wg.Wait()

	for i := range results {
		s.Require().NoError(errs[i])
		s.Equal(results[0], results[i])
	}
}

func (s *StoreSuite) TestReplaceUserSkillsLastWriteWins() {
	user := uuid.New()
	ids, err := s.store.EnsureSkillIDs(s.ctx, []string{"a", "b", "c"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.ReplaceUserSkills(s.ctx, user, ids[:2]))
	s.Require().NoError(s.store.ReplaceUserSkills(s.ctx, user, []int64{ids[2]}))

	got, err := s.store.GetUserSkills(s.ctx, user)
	s.Require().NoError(err)
	s.Equal([]int64{ids[2]}, got)
}

func (s *StoreSuite) TestCreateTeamAddsCaptain() {
	comp, owner := uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")
	s.Equal(models.TeamOpen, team.Status)

	details, err := s.store.GetTeamDetails(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Require().Len(details.Members, 1)
	s.Equal(owner, details.Members[0].UserID)
	s.True(details.Members[0].IsCaptain)
	s.Equal(models.MemberAccepted, details.Members[0].Status)
	s.Nil(details.Need)
}

func (s *StoreSuite) TestCaptainCannotOwnTwoTeamsInCompetition() {
	comp, owner := uuid.New(), uuid.New()
	s.createTeam(comp, owner, "Alpha")

	_, err := s.store.CreateTeam(s.ctx, models.Team{CompetitionID: comp, OwnerID: owner, Name: "Beta"})
	s.ErrorIs(err, repository.ErrAlreadyOnTeam)

	// в другом соревновании можно
	s.createTeam(uuid.New(), owner, "Gamma")
}

func (s *StoreSuite) TestGetTeamNotFound() {
	_, err := s.store.GetTeam(s.ctx, uuid.New())
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreSuite) TestUpdateTeamStatus() {
	team := s.createTeam(uuid.New(), uuid.New(), "Alpha")

	s.Require().NoError(s.store.UpdateTeamStatus(s.ctx, team.ID, models.TeamPending))
	got, err := s.store.GetTeam(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Equal(models.TeamPending, got.Status)

	err = s.store.UpdateTeamStatus(s.ctx, team.ID, models.TeamStatus("closed"))
	s.ErrorIs(err, repository.ErrInvalidTransition)
	s.ErrorIs(s.store.UpdateTeamStatus(s.ctx, uuid.New(), models.TeamOpen), repository.ErrNotFound)
}

func (s *StoreSuite) TestUpsertTeamNeedUniquePerTeam() {
	comp := uuid.New()
	team := s.createTeam(comp, uuid.New(), "Alpha")
	role := "backend"

	s.Require().NoError(s.store.UpsertTeamNeed(s.ctx, models.TeamNeed{TeamID: team.ID, NeededSkills: []int64{1}}))
	s.Require().NoError(s.store.UpsertTeamNeed(s.ctx, models.TeamNeed{TeamID: team.ID, NeededRole: &role, NeededSkills: []int64{2, 3}}))

	needs, err := s.store.ListTeamNeedsByCompetition(s.ctx, comp)
	s.Require().NoError(err)
	s.Require().Len(needs, 1)
	s.Equal([]int64{2, 3}, needs[0].NeededSkills)
	s.Require().NotNil(needs[0].NeededRole)
	s.Equal("backend", *needs[0].NeededRole)
	s.Equal(team.ID, needs[0].Team.ID)

	other, err := s.store.ListTeamNeedsByCompetition(s.ctx, uuid.New())
	s.Require().NoError(err)
	s.Empty(other)

	s.ErrorIs(s.store.UpsertTeamNeed(s.ctx, models.TeamNeed{TeamID: uuid.New()}), repository.ErrNotFound)
}

func (s *StoreSuite) TestJoinIntents() {
	comp, user := uuid.New(), uuid.New()

	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: user, CompetitionID: comp, DesiredSkills: []int64{1}}))
	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: user, CompetitionID: comp, DesiredSkills: []int64{2}}))

	intents, err := s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Require().Len(intents, 1)
	s.Equal([]int64{2}, intents[0].DesiredSkills)
	s.Equal(models.IntentPending, intents[0].Status)

	s.Require().NoError(s.store.DeleteJoinIntent(s.ctx, user, comp))
	intents, err = s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Empty(intents)
}

func (s *StoreSuite) TestCreateTeamClearsOwnerIntent() {
	comp, owner, other := uuid.New(), uuid.New(), uuid.New()
	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: owner, CompetitionID: comp, DesiredSkills: []int64{1}}))
	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: other, CompetitionID: comp, DesiredSkills: []int64{1}}))

	s.createTeam(comp, owner, "Alpha")

	intents, err := s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Require().Len(intents, 1)
	s.Equal(other, intents[0].UserID)
}

func (s *StoreSuite) TestJoinIntentRejectedForPlacedUser() {
	comp, owner := uuid.New(), uuid.New()
	s.createTeam(comp, owner, "Alpha")

	err := s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: owner, CompetitionID: comp, DesiredSkills: []int64{1}})
	s.ErrorIs(err, repository.ErrAlreadyOnTeam)

	intents, err := s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Empty(intents)

	// в другом соревновании пользователь свободен
	s.NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: owner, CompetitionID: uuid.New(), DesiredSkills: []int64{1}}))
}

func (s *StoreSuite) TestMatchSuggestionsUpsert() {
	team := s.createTeam(uuid.New(), uuid.New(), "Alpha")
	user := uuid.New()

	s.Require().NoError(s.store.UpsertMatchSuggestions(s.ctx, []models.MatchSuggestion{{TeamID: team.ID, UserID: user, Score: 0.5}}))
	s.Require().NoError(s.store.UpsertMatchSuggestions(s.ctx, []models.MatchSuggestion{{TeamID: team.ID, UserID: user, Score: 1}}))

	byTeam, err := s.store.ListSuggestionsForTeam(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Require().Len(byTeam, 1)
	s.InDelta(1.0, byTeam[0].Score, 1e-9)

	byUser, err := s.store.ListSuggestionsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(byTeam, byUser)
}

func (s *StoreSuite) TestRegistrationIdempotent() {
	comp := uuid.New()
	team := s.createTeam(comp, uuid.New(), "Alpha")

	first, err := s.store.UpsertRegistration(s.ctx, team.ID, comp)
	s.Require().NoError(err)
	second, err := s.store.UpsertRegistration(s.ctx, team.ID, comp)
	s.Require().NoError(err)

	s.Equal(models.RegistrationRegistered, second.Status)
	s.True(first.RegisteredAt.Equal(second.RegisteredAt))

	_, err = s.store.UpsertRegistration(s.ctx, uuid.New(), comp)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreSuite) TestInvitationGuards() {
	comp, owner, user := uuid.New(), uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")

	_, err := s.store.CreateInvitation(s.ctx, team.ID, user)
	s.Require().NoError(err)

	_, err = s.store.CreateInvitation(s.ctx, team.ID, user)
	s.ErrorIs(err, repository.ErrInvitePending)

	_, err = s.store.CreateInvitation(s.ctx, team.ID, owner)
	s.ErrorIs(err, repository.ErrAlreadyMember)

	_, err = s.store.CreateInvitation(s.ctx, uuid.New(), user)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreSuite) TestPlacedUserCannotBeInvitedOrRequest() {
	comp := uuid.New()
	alpha := s.createTeam(comp, uuid.New(), "Alpha")
	rival := uuid.New()
	s.createTeam(comp, rival, "Beta")

	_, err := s.store.CreateInvitation(s.ctx, alpha.ID, rival)
	s.ErrorIs(err, repository.ErrAlreadyOnTeam)

	_, err = s.store.CreateJoinRequest(s.ctx, alpha.ID, rival)
	s.ErrorIs(err, repository.ErrAlreadyOnTeam)

	invs, err := s.store.ListInvitationsForUser(s.ctx, rival)
	s.Require().NoError(err)
	s.Empty(invs)

	// команда из другого соревнования не мешает
	other := s.createTeam(uuid.New(), uuid.New(), "Gamma")
	_, err = s.store.CreateInvitation(s.ctx, other.ID, rival)
	s.NoError(err)
}

func (s *StoreSuite) TestConcurrentDuplicateInvitesCreateOne() {
	team := s.createTeam(uuid.New(), uuid.New(), "Alpha")
	user := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.store.CreateInvitation(s.ctx, team.ID, user)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		s.ErrorIs(err, repository.ErrInvitePending)
	}
	s.Equal(1, created)

	invs, err := s.store.ListInvitationsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Len(invs, 1)
}

func (s *StoreSuite) TestAcceptInvitation() {
	comp, owner, user := uuid.New(), uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")
	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: user, CompetitionID: comp, DesiredSkills: []int64{1}}))

	inv, err := s.store.CreateInvitation(s.ctx, team.ID, user)
	s.Require().NoError(err)

	invs, err := s.store.ListInvitationsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Require().Len(invs, 1)
	s.Equal("Alpha", invs[0].TeamName)

	_, err = s.store.ResolveInvitation(s.ctx, inv.ID, owner, models.DecisionAccept)
	s.ErrorIs(err, repository.ErrForbidden)

	res, err := s.store.ResolveInvitation(s.ctx, inv.ID, user, models.DecisionAccept)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, res.Invitation.Status)
	s.Equal(comp, res.CompetitionID)
	s.Equal(owner, res.OwnerID)
	s.Require().NotNil(res.Member)
	s.Equal(user, res.Member.UserID)

	details, err := s.store.GetTeamDetails(s.ctx, team.ID)
	s.Require().NoError(err)
	count := 0
	for _, m := range details.Members {
		if m.UserID == user {
			count++
			s.Equal(models.MemberAccepted, m.Status)
			s.False(m.IsCaptain)
		}
	}
	s.Equal(1, count)

	invs, err = s.store.ListInvitationsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Empty(invs)

	intents, err := s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Empty(intents)

	_, err = s.store.ResolveInvitation(s.ctx, inv.ID, user, models.DecisionAccept)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreSuite) TestRejectInvitation() {
	comp, owner, user := uuid.New(), uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")

	inv, err := s.store.CreateInvitation(s.ctx, team.ID, user)
	s.Require().NoError(err)

	res, err := s.store.ResolveInvitation(s.ctx, inv.ID, user, models.DecisionReject)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, res.Invitation.Status)
	s.Nil(res.Member)

	details, err := s.store.GetTeamDetails(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Len(details.Members, 1)

	invs, err := s.store.ListInvitationsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Empty(invs)
}

func (s *StoreSuite) TestAcceptInvitationKeepsOneTeamPerCompetition() {
	comp, user := uuid.New(), uuid.New()
	alpha := s.createTeam(comp, uuid.New(), "Alpha")
	beta := s.createTeam(comp, uuid.New(), "Beta")

	invA, err := s.store.CreateInvitation(s.ctx, alpha.ID, user)
	s.Require().NoError(err)
	invB, err := s.store.CreateInvitation(s.ctx, beta.ID, user)
	s.Require().NoError(err)

	_, err = s.store.ResolveInvitation(s.ctx, invA.ID, user, models.DecisionAccept)
	s.Require().NoError(err)

	_, err = s.store.ResolveInvitation(s.ctx, invB.ID, user, models.DecisionAccept)
	s.ErrorIs(err, repository.ErrAlreadyOnTeam)

	// неудачное принятие откатывается целиком: приглашение остается ожидающим
	invs, err := s.store.ListInvitationsForUser(s.ctx, user)
	s.Require().NoError(err)
	s.Require().Len(invs, 1)
	s.Equal(invB.ID, invs[0].ID)
	s.Equal(models.StatusPending, invs[0].Status)
}

func (s *StoreSuite) TestJoinRequestLifecycle() {
	comp, owner, user := uuid.New(), uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")
	s.Require().NoError(s.store.CreateJoinIntent(s.ctx, models.JoinIntent{UserID: user, CompetitionID: comp}))

	req, err := s.store.CreateJoinRequest(s.ctx, team.ID, user)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, req.Status)

	_, err = s.store.CreateJoinRequest(s.ctx, team.ID, user)
	s.ErrorIs(err, repository.ErrRequestPending)

	_, err = s.store.CreateJoinRequest(s.ctx, team.ID, owner)
	s.ErrorIs(err, repository.ErrAlreadyMember)

	list, err := s.store.ListJoinRequestsForOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("Alpha", list[0].TeamName)

	_, err = s.store.ResolveJoinRequest(s.ctx, req.ID, user, models.DecisionAccept)
	s.ErrorIs(err, repository.ErrForbidden)

	res, err := s.store.ResolveJoinRequest(s.ctx, req.ID, owner, models.DecisionAccept)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, res.Request.Status)
	s.Require().NotNil(res.Member)

	list, err = s.store.ListJoinRequestsForOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Empty(list)

	intents, err := s.store.ListPendingIntents(s.ctx, comp)
	s.Require().NoError(err)
	s.Empty(intents)
}

func (s *StoreSuite) TestJoinRequestRegistersTeamOnce() {
	comp := uuid.New()
	team := s.createTeam(comp, uuid.New(), "Alpha")

	_, err := s.store.CreateJoinRequest(s.ctx, team.ID, uuid.New())
	s.Require().NoError(err)
	_, err = s.store.CreateJoinRequest(s.ctx, team.ID, uuid.New())
	s.Require().NoError(err)

	reg, err := s.store.UpsertRegistration(s.ctx, team.ID, comp)
	s.Require().NoError(err)
	s.Equal(team.ID, reg.TeamID)
}

func (s *StoreSuite) TestRejectJoinRequest() {
	comp, owner, user := uuid.New(), uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")

	req, err := s.store.CreateJoinRequest(s.ctx, team.ID, user)
	s.Require().NoError(err)

	res, err := s.store.ResolveJoinRequest(s.ctx, req.ID, owner, models.DecisionReject)
	s.Require().NoError(err)
	s.Nil(res.Member)

	details, err := s.store.GetTeamDetails(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Len(details.Members, 1)

	_, err = s.store.ResolveJoinRequest(s.ctx, req.ID, owner, models.DecisionReject)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *StoreSuite) TestConcurrentAcceptsIntoSameTeam() {
	comp, owner := uuid.New(), uuid.New()
	team := s.createTeam(comp, owner, "Alpha")
	u1, u2 := uuid.New(), uuid.New()

	inv1, err := s.store.CreateInvitation(s.ctx, team.ID, u1)
	s.Require().NoError(err)
	inv2, err := s.store.CreateInvitation(s.ctx, team.ID, u2)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []struct {
		inv, user uuid.UUID
	}{{inv1.ID, u1}, {inv2.ID, u2}} {
		wg.Add(1)
		go func(i int, inv, user uuid.UUID) {
			defer wg.Done()
			_, errs[i] = s.store.ResolveInvitation(s.ctx, inv, user, models.DecisionAccept)
		}(i, p.inv, p.user)
	}
	wg.Wait()

	s.NoError(errs[0])
	s.NoError(errs[1])

	details, err := s.store.GetTeamDetails(s.ctx, team.ID)
	s.Require().NoError(err)
	s.Len(details.Members, 3)
}

func (s *StoreSuite) TestUnknownDecision() {
	team := s.createTeam(uuid.New(), uuid.New(), "Alpha")
	user := uuid.New()
	inv, err := s.store.CreateInvitation(s.ctx, team.ID, user)
	s.Require().NoError(err)

	_, err = s.store.ResolveInvitation(s.ctx, inv.ID, user, models.Decision("maybe"))
	s.ErrorIs(err, repository.ErrInvalidTransition)
}
