package models

import "time"

// PendingQuiz is an uploaded quiz staged in the database until the sync tool writes it into the tree.
type PendingQuiz struct {
	ID        string      `db:"id" json:"id"`
	Path      string      `db:"path" json:"path"`
	Filename  string      `db:"filename" json:"filename"`
	Data      QuizPayload `db:"data" json:"data"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	SyncedAt  *time.Time  `db:"synced_at" json:"syncedAt,omitempty"`
}

// PendingQuizCounts summarises the staging table.
type PendingQuizCounts struct {
	Total   int `db:"total" json:"total"`
	Pending int `db:"pending" json:"pending"`
	Synced  int `db:"synced" json:"synced"`
}

// QuizPathTree maps category to subject to its sorted subfolders.
type QuizPathTree map[string]map[string][]string
