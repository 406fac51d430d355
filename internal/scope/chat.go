package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/servifast/jobsync/internal/api"
	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/poll"
	"github.com/servifast/jobsync/internal/reconcile"
	"github.com/servifast/jobsync/internal/store"
	"github.com/servifast/jobsync/internal/transport"
)

// ChatBackend is the subset of the REST client a chat scope uses.
type ChatBackend interface {
	Messages(ctx context.Context, jobID int64, applicationID *int64) ([]domain.Message, error)
	SendMessage(ctx context.Context, jobID int64, req api.SendMessageRequest) (domain.Message, error)
}

// ChatConfig holds chat scope wiring.
type ChatConfig struct {
	Backend       ChatBackend
	Channel       *transport.Channel
	Store         *store.ChatStore
	JobID         int64
	ApplicationID *int64
	// PollInterval is the history sweep cadence. The chat polls on every
	// tick, connected or not, because the poll is what guarantees
	// convergence.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Chat keeps one conversation converged. Socket frames, poll sweeps, and
// optimistic send confirmations all merge into the same store, deduplicated
// by message id.
type Chat struct {
	backend       ChatBackend
	channel       *transport.Channel
	store         *store.ChatStore
	jobID         int64
	applicationID *int64
	poller        *poll.Poller
	logger        *slog.Logger
}

// NewChat validates cfg and builds the scope.
func NewChat(cfg ChatConfig) (*Chat, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.JobID == 0 {
		return nil, fmt.Errorf("job id is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Chat{
		backend:       cfg.Backend,
		channel:       cfg.Channel,
		store:         cfg.Store,
		jobID:         cfg.JobID,
		applicationID: cfg.ApplicationID,
		logger: cfg.Logger.With(
			slog.String("scope", "chat"),
			slog.Int64("job_id", cfg.JobID),
		),
	}
	c.poller = poll.New(cfg.PollInterval, c.sync, nil, cfg.Logger)
	return c, nil
}

// Store exposes the conversation view.
func (c *Chat) Store() *store.ChatStore {
	return c.store
}

// Run blocks until ctx is cancelled.
func (c *Chat) Run(ctx context.Context) error {
	if err := c.sync(ctx); err != nil {
		c.logger.Warn("Initial history load failed", slog.Any("error", err))
	}

	events, cancelEvents := c.channel.Subscribe(64)
	defer cancelEvents()
	states, cancelStates := c.channel.StateChanges(8)
	defer cancelStates()

	c.channel.Connect(ctx)
	go c.poller.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			c.store.SetConnected(false)
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.handleFrame(event)
		case state, ok := <-states:
			if !ok {
				return nil
			}
			c.store.SetConnected(state == transport.StateConnected)
			if state != transport.StateConnected {
				c.poller.Kick()
			}
		}
	}
}

// sync merges the full backend history into the store.
func (c *Chat) sync(ctx context.Context) error {
	messages, err := c.backend.Messages(ctx, c.jobID, c.applicationID)
	if err != nil {
		return err
	}
	if added := c.store.AddMessages(messages); added > 0 {
		c.logger.Debug("History sweep merged messages", slog.Int("added", added))
	}
	return nil
}

// handleFrame merges one socket frame. The frame may carry the message at
// the top level or nested under "message"; anything without a message id is
// ignored, the next sweep covers it.
func (c *Chat) handleFrame(event transport.Event) {
	var envelope struct {
		Message *domain.Message `json:"message"`
	}
	if err := json.Unmarshal(event.Data, &envelope); err == nil && envelope.Message != nil && envelope.Message.ID != 0 {
		c.merge(*envelope.Message)
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(event.Data, &msg); err == nil && msg.ID != 0 {
		c.merge(msg)
		return
	}
	c.logger.Debug("Ignoring frame without message payload", slog.String("type", event.Type))
}

// merge adds one socket-delivered message, dropping anything addressed to a
// different conversation. The backend fans messages out per job, so an
// application-scoped chat can see frames belonging to another application's
// conversation on the same job.
func (c *Chat) merge(msg domain.Message) {
	if msg.JobID != 0 && msg.JobID != c.jobID {
		c.logger.Debug("Dropping frame for another job", slog.Int64("frame_job_id", msg.JobID))
		return
	}
	if c.applicationID != nil && (msg.ApplicationID == nil || *msg.ApplicationID != *c.applicationID) {
		c.logger.Debug("Dropping frame for another conversation", slog.Int64("message_id", msg.ID))
		return
	}
	c.store.AddMessage(msg)
}

// Send performs an optimistic send: the message appears in the local view
// immediately, the REST call confirms it with the backend-assigned id, and
// the socket echo of the same id dedups away.
func (c *Chat) Send(ctx context.Context, content string, hasImage bool, imageURL *string) (domain.Message, error) {
	if content == "" && !hasImage {
		return domain.Message{}, fmt.Errorf("message is empty")
	}

	entry := c.store.AddPending(content, hasImage, imageURL)
	msg, err := c.backend.SendMessage(ctx, c.jobID, api.SendMessageRequest{
		Content:       content,
		HasImage:      hasImage,
		ImageURL:      imageURL,
		ApplicationID: c.applicationID,
	})
	if err != nil {
		c.store.FailPending(entry.LocalID)
		return domain.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	c.store.ConfirmPending(entry.LocalID, msg)
	return msg, nil
}

// Resend retries a failed optimistic send under the same local id.
func (c *Chat) Resend(ctx context.Context, localID string) (domain.Message, error) {
	var entry *reconcile.PendingMessage
	for _, pending := range c.store.Snapshot().Pending {
		if pending.LocalID == localID {
			entry = &pending
			break
		}
	}
	if entry == nil {
		return domain.Message{}, fmt.Errorf("no pending message %s", localID)
	}
	if !c.store.RetryPending(localID) {
		return domain.Message{}, fmt.Errorf("pending message %s is not retryable", localID)
	}

	msg, err := c.backend.SendMessage(ctx, c.jobID, api.SendMessageRequest{
		Content:       entry.Content,
		HasImage:      entry.HasImage,
		ImageURL:      entry.ImageURL,
		ApplicationID: entry.ApplicationID,
	})
	if err != nil {
		c.store.FailPending(localID)
		return domain.Message{}, fmt.Errorf("failed to resend message: %w", err)
	}

	c.store.ConfirmPending(localID, msg)
	return msg, nil
}

// Drain reports the sends still unresolved when the conversation closes.
func (c *Chat) Drain() []reconcile.PendingMessage {
	return c.store.Drain()
}
