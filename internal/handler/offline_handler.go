package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/middleware"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/response"
)

// OfflineHandler exposes the caching worker: the intercepted fetch path and
// the client messaging endpoints.
type OfflineHandler struct {
	service        *service.OfflineCacheService
	validator      *validator.Validate
	logger         *zap.Logger
	originPatterns []string
}

// NewOfflineHandler constructs handler. originPatterns limits WebSocket origins; empty allows same origin only.
func NewOfflineHandler(svc *service.OfflineCacheService, validate *validator.Validate, logger *zap.Logger, originPatterns []string) *OfflineHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfflineHandler{service: svc, validator: validate, logger: logger, originPatterns: originPatterns}
}

// Fetch answers every route the gateway does not reserve through the fetch policy.
func (h *OfflineHandler) Fetch(c *gin.Context) {
	res := h.service.Fetch(c.Request.Context(), c.Request)
	for key, values := range res.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	middleware.SetFetchSource(c, res.Source, h.service.Version())
	c.Status(res.Status)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := c.Writer.Write(res.Body); err != nil {
		h.logger.Debug("client went away during fetch", zap.Error(err))
	}
}

// PostMessage godoc
// @Summary Send a command to the caching worker
// @Tags Offline
// @Accept json
// @Produce json
// @Param payload body models.ClientMessage true "Client message"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sw/messages [post]
func (h *OfflineHandler) PostMessage(c *gin.Context) {
	var msg models.ClientMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	if err := h.validator.Struct(msg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "message type is required"))
		return
	}

	jobID, err := h.service.HandleMessage(c.Request.Context(), msg)
	if err != nil {
		response.Error(c, err)
		return
	}
	if jobID != "" {
		response.Accepted(c, dto.WorkerMessageResponse{Type: msg.Type, Result: jobID})
		return
	}
	response.JSON(c, http.StatusOK, dto.WorkerMessageResponse{Type: msg.Type, Result: "ok"})
}

// Status godoc
// @Summary Caching worker status
// @Tags Offline
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sw/status [get]
func (h *OfflineHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Status(c.Request.Context()))
}

// Clients upgrades to a WebSocket that receives every worker message and
// accepts client commands as JSON {type}.
func (h *OfflineHandler) Clients(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	id, messages, unsubscribe := h.service.Notifier().Subscribe()
	defer unsubscribe()
	logger := h.logger.With(zap.String("client_id", id))
	logger.Info("client connected")

	if h.service.State() == models.LifecycleActivated {
		if err := wsjson.Write(ctx, conn, models.WorkerMessage{Type: models.MessageWorkerActivated, Version: h.service.Version()}); err != nil {
			return
		}
	}

	go h.readCommands(ctx, cancel, conn, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-messages:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "worker shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				logger.Debug("client write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *OfflineHandler) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, logger *zap.Logger) {
	defer cancel()
	for {
		var msg models.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.Debug("client read failed", zap.Error(err))
			}
			return
		}
		if err := h.validator.Struct(msg); err != nil {
			h.reject(ctx, conn, msg, appErrors.Clone(appErrors.ErrValidation, "message type is required"))
			continue
		}
		if _, err := h.service.HandleMessage(ctx, msg); err != nil {
			logger.Warn("client command failed", zap.String("type", msg.Type), zap.Error(err))
			h.reject(ctx, conn, msg, err)
		}
	}
}

func (h *OfflineHandler) reject(ctx context.Context, conn *websocket.Conn, msg models.ClientMessage, err error) {
	reply := models.WorkerMessage{Type: models.MessageCommandRejected, Error: appErrors.FromError(err).Message}
	if msg.Type != "" {
		reply.Error = msg.Type + ": " + reply.Error
	}
	_ = wsjson.Write(ctx, conn, reply)
}
