package handler

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/response"
)

type quizUploader interface {
	Upload(ctx context.Context, req dto.UploadQuizRequest) (*dto.UploadQuizResponse, error)
	ListPaths(ctx context.Context) (models.QuizPathTree, error)
	QuizData(ctx context.Context, rawPath string) (models.QuizPayload, error)
	HostedManifest(ctx context.Context, quizDataURL string) (*models.Manifest, error)
}

// QuizHandler exposes quiz uploads and database hosted quiz data.
type QuizHandler struct {
	uploads     quizUploader
	quizDataURL string
}

// NewQuizHandler constructs handler. apiPrefix is where the quiz-data route is mounted.
func NewQuizHandler(uploads quizUploader, apiPrefix string) *QuizHandler {
	return &QuizHandler{uploads: uploads, quizDataURL: path.Join("/", apiPrefix, "quiz-data")}
}

// Upload godoc
// @Summary Upload a quiz
// @Description Validates the quiz and stages it for the sync tool
// @Tags Quizzes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.UploadQuizRequest true "Upload payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /quizzes [post]
func (h *QuizHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*service.MaxQuizPayloadBytes)
	var req dto.UploadQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status, "quiz payload too large"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload payload"))
		return
	}

	res, err := h.uploads.Upload(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Paths godoc
// @Summary List upload paths
// @Tags Quizzes
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /quiz-paths [get]
func (h *QuizHandler) Paths(c *gin.Context) {
	tree, err := h.uploads.ListPaths(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tree)
}

// Data godoc
// @Summary Serve an uploaded quiz
// @Description Returns the raw quiz document for quizzes hosted in the database
// @Tags Quizzes
// @Produce json
// @Param path query string true "quizzes/<path>/<filename>.json"
// @Success 200 {object} object
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quiz-data [get]
func (h *QuizHandler) Data(c *gin.Context) {
	data, err := h.uploads.QuizData(c.Request.Context(), c.Query("path"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Manifest godoc
// @Summary List database hosted quizzes
// @Description Returns uploaded quizzes in the quiz-manifest.json shape; quiz paths point at quiz-data
// @Tags Quizzes
// @Produce json
// @Success 200 {object} models.Manifest
// @Failure 500 {object} response.Envelope
// @Router /quiz-manifest [get]
func (h *QuizHandler) Manifest(c *gin.Context) {
	manifest, err := h.uploads.HostedManifest(c.Request.Context(), h.quizDataURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=60, stale-while-revalidate=300")
	c.JSON(http.StatusOK, manifest)
}
