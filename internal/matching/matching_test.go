package matching

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/untibullet/teamfinder/internal/models"
)

func TestParseSkillNames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "react, node", []string{"react", "node"}},
		{"case and spaces", "  React ,NODE  ,sql", []string{"react", "node", "sql"}},
		{"duplicates keep first", "Go, rust, go, GO ", []string{"go", "rust"}},
		{"empty items", ",, ,react,,", []string{"react"}},
		{"empty", "", []string{}},
		{"no fuzzy matching", "node.js, nodejs", []string{"node.js", "nodejs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSkillNames(tt.input))
		})
	}
}

func TestNormalizeSlugIdempotent(t *testing.T) {
	for _, in := range []string{"React", " react", "REACT  ", "\treAct\n"} {
		assert.Equal(t, "react", NormalizeSlug(in))
		assert.Equal(t, NormalizeSlug(in), NormalizeSlug(NormalizeSlug(in)))
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		required  []int64
		candidate []int64
		want      float64
	}{
		{"empty required", nil, []int64{1, 2}, 0},
		{"empty candidate", []int64{1, 2}, nil, 0},
		{"identical", []int64{1, 2, 3}, []int64{1, 2, 3}, 1},
		{"half", []int64{1, 2}, []int64{1, 5}, 0.5},
		{"superset candidate", []int64{1}, []int64{1, 2, 3}, 1},
		{"duplicates in required", []int64{1, 1, 2, 3}, []int64{1}, 0.5},
		{"no overlap", []int64{1, 2}, []int64{3, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.required, tt.candidate)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestRankCandidates(t *testing.T) {
	captain := uuid.New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	candidates := map[uuid.UUID][]int64{
		captain: {1, 2},
		a:       {1},
		b:       {1, 2},
		c:       {9},
		d:       {2},
	}

	all, top := RankCandidates([]int64{1, 2}, candidates, captain, 2)
	require.Len(t, all, 3)
	assert.Equal(t, b, all[0].UserID)
	assert.InDelta(t, 1.0, all[0].Score, 1e-9)
	assert.InDelta(t, 0.5, all[1].Score, 1e-9)
	assert.InDelta(t, 0.5, all[2].Score, 1e-9)
	require.Len(t, top, 2)
	assert.Equal(t, all[:2], top)

	for _, m := range all {
		assert.NotEqual(t, captain, m.UserID)
		assert.NotEqual(t, c, m.UserID)
	}
}

func TestRankTeams(t *testing.T) {
	seeker := uuid.New()
	mk := func(owner uuid.UUID, skills ...int64) models.TeamNeedWithTeam {
		id := uuid.New()
		return models.TeamNeedWithTeam{
			TeamNeed: models.TeamNeed{TeamID: id, NeededSkills: skills},
			Team:     models.Team{ID: id, OwnerID: owner},
		}
	}
	own := mk(seeker, 1)
	full := mk(uuid.New(), 1)
	half := mk(uuid.New(), 1, 2)
	none := mk(uuid.New(), 7)
	empty := mk(uuid.New())

	all, top := RankTeams([]int64{1}, []models.TeamNeedWithTeam{own, half, none, full, empty}, seeker, 20)
	require.Len(t, all, 2)
	assert.Equal(t, full.Team.ID, all[0].Team.ID)
	assert.Equal(t, half.Team.ID, all[1].Team.ID)
	assert.Equal(t, all, top)
}

func TestGroupIntentSkills(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	grouped := GroupIntentSkills([]models.JoinIntent{
		{UserID: u1, DesiredSkills: []int64{1, 2}},
		{UserID: u1, DesiredSkills: []int64{2, 3}},
		{UserID: u2},
	})
	assert.Equal(t, []int64{1, 2, 3}, grouped[u1])
	assert.Empty(t, grouped[u2])
	assert.Len(t, grouped, 2)
}
