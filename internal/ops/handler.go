// Package ops exposes the agent's local HTTP surface: dashboard snapshots,
// lifecycle actions, and chat control. It is the seam a UI or operator tool
// drives the sync core through.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/servifast/jobsync/internal/api"
	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/lifecycle"
	"github.com/servifast/jobsync/internal/scope"
	"github.com/servifast/jobsync/internal/store"
	"github.com/servifast/jobsync/internal/transport"
)

// Directory is the backend discovery surface, proxied through for workers
// browsing jobs they have not applied to yet.
type Directory interface {
	AvailableJobs(ctx context.Context, serviceType, search string) ([]domain.Job, error)
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Controller *lifecycle.Controller
	Directory  Directory
	Store      *store.DashboardStore
	Channel    *transport.Channel
	Chats      *scope.Registry
	Logger     *slog.Logger
}

// Handler serves the ops endpoints.
type Handler struct {
	controller *lifecycle.Controller
	directory  Directory
	store      *store.DashboardStore
	channel    *transport.Channel
	chats      *scope.Registry
	logger     *slog.Logger
}

// NewHandler creates the ops handler.
func NewHandler(deps *Dependencies) *Handler {
	return &Handler{
		controller: deps.Controller,
		directory:  deps.Directory,
		store:      deps.Store,
		channel:    deps.Channel,
		chats:      deps.Chats,
		logger:     deps.Logger,
	}
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		status := http.StatusConflict
		if terr.Kind == domain.TransitionForbidden {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": terr.Error(), "kind": terr.Kind.String()})
		return
	}

	var conflict *domain.ApplicationConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "code": conflict.Code})
		return
	}

	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if errors.Is(err, domain.ErrInvalidAmount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Error(), "backend_status": apiErr.StatusCode})
		return
	}

	h.logger.Error("Request failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func jobIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func applicationIDQuery(c *gin.Context) (*int64, bool) {
	raw := c.Query("application_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "application_id must be a positive integer"})
		return nil, false
	}
	return &id, true
}

// Dashboard handles GET /api/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection": h.channel.State().String(),
		"jobs":       h.store.Snapshot(),
	})
}

// AvailableJobs handles GET /api/jobs/available
func (h *Handler) AvailableJobs(c *gin.Context) {
	jobs, err := h.directory.AvailableJobs(c.Request.Context(),
		c.Query("service_type"), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob handles GET /api/jobs/:job_id
func (h *Handler) GetJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	entry, ok := h.store.Job(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":          entry.Job,
		"applications": entry.Applications,
		"stage":        entry.Job.Stage().String(),
	})
}

// Apply handles POST /api/jobs/:job_id/apply
func (h *Handler) Apply(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.controller.Apply(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// AcceptWorker handles POST /api/jobs/:job_id/accept-worker/:application_id
func (h *Handler) AcceptWorker(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, err := strconv.ParseInt(c.Param("application_id"), 10, 64)
	if err != nil || applicationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "application_id must be a positive integer"})
		return
	}

	job, err := h.controller.AcceptWorker(c.Request.Context(), jobID, applicationID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// transition is the shared shape of the argument-less lifecycle endpoints.
func (h *Handler) transition(c *gin.Context, call func(jobID int64) (domain.Job, error)) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := call(jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":   job,
		"stage": job.Stage().String(),
	})
}

// StartRoute handles POST /api/jobs/:job_id/start-route
func (h *Handler) StartRoute(c *gin.Context) {
	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.StartRoute(c.Request.Context(), jobID)
	})
}

// ConfirmArrival handles POST /api/jobs/:job_id/confirm-arrival
func (h *Handler) ConfirmArrival(c *gin.Context) {
	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.ConfirmArrival(c.Request.Context(), jobID)
	})
}

// StartService handles POST /api/jobs/:job_id/start-service
func (h *Handler) StartService(c *gin.Context) {
	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.StartService(c.Request.Context(), jobID)
	})
}

// Complete handles POST /api/jobs/:job_id/complete
func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.Complete(c.Request.Context(), jobID)
	})
}

// Cancel handles POST /api/jobs/:job_id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.Cancel(c.Request.Context(), jobID)
	})
}

// AddExtra handles POST /api/jobs/:job_id/add-extra
func (h *Handler) AddExtra(c *gin.Context) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.transition(c, func(jobID int64) (domain.Job, error) {
		return h.controller.AddExtra(c.Request.Context(), jobID, req.Amount, req.Description)
	})
}

// Rate handles POST /api/jobs/:job_id/rate
func (h *Handler) Rate(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Rating  int    `json:"rating" binding:"required,min=1,max=5"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	rating, err := h.controller.Rate(c.Request.Context(), jobID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rating)
}

// OpenChat handles POST /api/chat/:job_id/open
func (h *Handler) OpenChat(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, ok := applicationIDQuery(c)
	if !ok {
		return
	}

	chat, err := h.chats.Open(jobID, applicationID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat.Store().Snapshot())
}

// ChatSnapshot handles GET /api/chat/:job_id
func (h *Handler) ChatSnapshot(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, ok := applicationIDQuery(c)
	if !ok {
		return
	}

	chat, ok := h.chats.Get(jobID, applicationID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat is not open"})
		return
	}
	c.JSON(http.StatusOK, chat.Store().Snapshot())
}

// SendChatMessage handles POST /api/chat/:job_id/send
func (h *Handler) SendChatMessage(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, ok := applicationIDQuery(c)
	if !ok {
		return
	}

	var req struct {
		Content  string  `json:"content"`
		HasImage bool    `json:"has_image"`
		ImageURL *string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chat, ok := h.chats.Get(jobID, applicationID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat is not open"})
		return
	}

	msg, err := chat.Send(c.Request.Context(), req.Content, req.HasImage, req.ImageURL)
	if err != nil {
		// the optimistic entry stays visible for a retry
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ResendChatMessage handles POST /api/chat/:job_id/resend/:local_id
func (h *Handler) ResendChatMessage(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, ok := applicationIDQuery(c)
	if !ok {
		return
	}

	chat, ok := h.chats.Get(jobID, applicationID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat is not open"})
		return
	}

	msg, err := chat.Resend(c.Request.Context(), c.Param("local_id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// CloseChat handles DELETE /api/chat/:job_id
func (h *Handler) CloseChat(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	applicationID, ok := applicationIDQuery(c)
	if !ok {
		return
	}

	unsent, ok := h.chats.Close(jobID, applicationID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat is not open"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsent": unsent})
}
