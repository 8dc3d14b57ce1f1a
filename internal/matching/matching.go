// Package matching содержит нормализацию навыков и подсчет совпадений
package matching

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/untibullet/teamfinder/internal/models"
)

// NormalizeSlug приводит название навыка к каноническому виду
func NormalizeSlug(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParseSkillNames разбирает список навыков через запятую.
// Порядок первого вхождения сохраняется, дубликаты и пустые значения отбрасываются.
func ParseSkillNames(text string) []string {
	return NormalizeNames(strings.Split(text, ","))
}

// NormalizeNames нормализует и дедуплицирует уже разделенные названия
func NormalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		slug := NormalizeSlug(n)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// Score возвращает долю требуемых навыков, которые есть у кандидата.
// Повторы в required считаются каждый раз; для пустого required результат 0.
func Score(required, candidate []int64) float64 {
	if len(required) == 0 {
		return 0
	}
	have := make(map[int64]struct{}, len(candidate))
	for _, id := range candidate {
		have[id] = struct{}{}
	}
	matched := 0
	for _, id := range required {
		if _, ok := have[id]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// RankCandidates оценивает кандидатов под потребности команды.
// all содержит все ненулевые совпадения по убыванию оценки, top содержит первые limit из них.
func RankCandidates(need []int64, candidates map[uuid.UUID][]int64, exclude uuid.UUID, limit int) (all, top []models.CandidateMatch) {
	for userID, skills := range candidates {
		if userID == exclude {
			continue
		}
		if s := Score(need, skills); s > 0 {
			all = append(all, models.CandidateMatch{UserID: userID, Score: s})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].UserID.String() < all[j].UserID.String()
	})
	return all, truncate(all, limit)
}

// RankTeams оценивает команды соревнования под навыки ищущего участника.
// Команды, принадлежащие exclude, пропускаются.
func RankTeams(skills []int64, needs []models.TeamNeedWithTeam, exclude uuid.UUID, limit int) (all, top []models.TeamMatch) {
	for _, n := range needs {
		if n.Team.OwnerID == exclude {
			continue
		}
		if s := Score(n.NeededSkills, skills); s > 0 {
			all = append(all, models.TeamMatch{Team: n.Team, Score: s})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Team.ID.String() < all[j].Team.ID.String()
	})
	return all, truncate(all, limit)
}

// GroupIntentSkills объединяет навыки из всех намерений одного пользователя
func GroupIntentSkills(intents []models.JoinIntent) map[uuid.UUID][]int64 {
	grouped := make(map[uuid.UUID][]int64)
	seen := make(map[uuid.UUID]map[int64]struct{})
	for _, in := range intents {
		if _, ok := seen[in.UserID]; !ok {
			seen[in.UserID] = make(map[int64]struct{})
			grouped[in.UserID] = []int64{}
		}
		for _, id := range in.DesiredSkills {
			if _, dup := seen[in.UserID][id]; dup {
				continue
			}
			seen[in.UserID][id] = struct{}{}
			grouped[in.UserID] = append(grouped[in.UserID], id)
		}
	}
	return grouped
}

func truncate[T any](list []T, limit int) []T {
	if limit <= 0 || len(list) <= limit {
		return list
	}
	return list[:limit]
}
