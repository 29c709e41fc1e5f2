package importer

import (
	"sort"
	"strings"

	"github.com/neuro-mcq/backend/internal/models"
)

// QuestionKey is the identity used for duplicate detection.
func QuestionKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// CompletenessScore ranks duplicate copies of one question.
func CompletenessScore(m *models.MCQ) int {
	score := 0
	for _, v := range m.ExplanationSections {
		if strings.TrimSpace(v) != "" {
			score++
		}
	}
	if strings.TrimSpace(m.UnifiedExplanation) != "" || strings.TrimSpace(m.Explanation) != "" {
		score++
	}
	if strings.TrimSpace(m.CorrectAnswer) != "" {
		score++
	}
	if sub := strings.TrimSpace(m.Subspecialty); sub != "" && sub != models.UnclassifiedSubspecialty {
		score += 2
	}
	if m.ExamType != "" {
		score++
	}
	if strings.TrimSpace(m.ExamYear) != "" {
		score++
	}
	return score
}

// PickBest returns the most complete MCQ in the group (lowest id on ties)
// and the rest.
func PickBest(group []models.MCQ) (models.MCQ, []models.MCQ) {
	if len(group) == 0 {
		return models.MCQ{}, nil
	}
	best := 0
	bestScore := CompletenessScore(&group[0])
	for i := 1; i < len(group); i++ {
		s := CompletenessScore(&group[i])
		if s > bestScore || (s == bestScore && group[i].ID < group[best].ID) {
			best, bestScore = i, s
		}
	}
	rest := make([]models.MCQ, 0, len(group)-1)
	for i := range group {
		if i != best {
			rest = append(rest, group[i])
		}
	}
	return group[best], rest
}

// DuplicateGroups returns every set of MCQs sharing a QuestionKey, ordered
// by the lowest id in each group.
func DuplicateGroups(mcqs []models.MCQ) [][]models.MCQ {
	byKey := make(map[string][]models.MCQ)
	for _, m := range mcqs {
		key := QuestionKey(m.QuestionText)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], m)
	}

	var groups [][]models.MCQ
	for _, g := range byKey {
		if len(g) > 1 {
			sort.Slice(g, func(i, j int) bool { return g[i].ID < g[j].ID })
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}
