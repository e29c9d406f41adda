package dto

import (
	"encoding/json"
	"time"
)

// LoginRequest captures POST /auth payload.
type LoginRequest struct {
	AdminID string `json:"adminId" validate:"required,max=200"`
}

// LoginResponse carries the issued admin token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadQuizRequest captures POST /quizzes payload.
type UploadQuizRequest struct {
	Category  string          `json:"category" validate:"required,max=100"`
	Subject   string          `json:"subject" validate:"required,max=100"`
	Subfolder string          `json:"subfolder,omitempty" validate:"max=100"`
	Quiz      json.RawMessage `json:"quiz" validate:"required"`
}

// UploadQuizResponse is returned after staging an upload.
type UploadQuizResponse struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}
