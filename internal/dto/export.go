package dto

import "time"

// ExportRequest captures POST /exports payload. Answers holds the selected
// option index per question, null when unanswered.
type ExportRequest struct {
	QuizPath string `json:"quizPath" validate:"required,max=500"`
	Format   string `json:"format" validate:"required,oneof=pdf csv xlsx"`
	Answers  []*int `json:"answers,omitempty"`
}

// ExportResponse exposes the signed download location.
type ExportResponse struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
