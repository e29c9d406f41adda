package service

import (
	"sort"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

// ComputeStats derives the stats block from a question list. Types are unique and sorted.
func ComputeStats(questions []models.Question) models.QuizStats {
	seen := make(map[models.QuestionType]struct{}, 3)
	types := make([]models.QuestionType, 0, 3)
	for _, q := range questions {
		t := q.Type()
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return models.QuizStats{QuestionCount: len(questions), QuestionTypes: types}
}

// StatsEqual reports whether two stats blocks describe the same question list.
func StatsEqual(a, b models.QuizStats) bool {
	if a.QuestionCount != b.QuestionCount || len(a.QuestionTypes) != len(b.QuestionTypes) {
		return false
	}
	for i := range a.QuestionTypes {
		if a.QuestionTypes[i] != b.QuestionTypes[i] {
			return false
		}
	}
	return true
}
