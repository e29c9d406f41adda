package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

// IDCount is an identifier seen more than once.
type IDCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// DuplicateIDError lists every colliding subject and quiz ID. It is fatal to a build.
type DuplicateIDError struct {
	Subjects []IDCount
	Quizzes  []IDCount
}

func (e *DuplicateIDError) Error() string {
	var b strings.Builder
	b.WriteString("duplicate ids found")
	write := func(kind string, counts []IDCount) {
		for _, c := range counts {
			fmt.Fprintf(&b, "; %s %q appears %d times", kind, c.ID, c.Count)
		}
	}
	write("quiz", e.Quizzes)
	write("subject", e.Subjects)
	return b.String()
}

// ValidateUniqueIDs counts subject and quiz IDs independently and returns a
// *DuplicateIDError when any ID occurs more than once.
func ValidateUniqueIDs(subjects []models.Subject) error {
	subjectCounts := make(map[string]int)
	quizCounts := make(map[string]int)
	for _, subject := range subjects {
		if subject.ID != "" {
			subjectCounts[subject.ID]++
		}
		for _, quiz := range subject.Quizzes {
			quizCounts[quiz.ID]++
		}
	}

	err := &DuplicateIDError{Subjects: duplicates(subjectCounts), Quizzes: duplicates(quizCounts)}
	if len(err.Subjects) == 0 && len(err.Quizzes) == 0 {
		return nil
	}
	return err
}

func duplicates(counts map[string]int) []IDCount {
	var out []IDCount
	for id, n := range counts {
		if n > 1 {
			out = append(out, IDCount{ID: id, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
