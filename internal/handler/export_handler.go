package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/response"
)

type quizExporter interface {
	Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error)
	Open(token string) (*service.ExportFile, error)
}

// ExportHandler exposes quiz document exports.
type ExportHandler struct {
	exports quizExporter
	logger  *zap.Logger
}

// NewExportHandler constructs handler.
func NewExportHandler(exports quizExporter, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{exports: exports, logger: logger}
}

// Create godoc
// @Summary Export a quiz
// @Description Renders the normalized quiz with the selected answers
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	res, err := h.exports.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download an export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()

	c.Header("Content-Type", file.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file.File); err != nil {
		h.logger.Warn("export download interrupted", zap.String("file", file.Name), zap.Error(err))
	}
}
