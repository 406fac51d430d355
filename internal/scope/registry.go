package scope

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/servifast/jobsync/internal/reconcile"
)

// ChatFactory builds a chat scope for one conversation. The registry owns
// the returned scope's lifetime.
type ChatFactory func(jobID int64, applicationID *int64) (*Chat, error)

type managedChat struct {
	chat   *Chat
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks the open chat scopes, one per conversation. Opening the
// same conversation twice returns the existing scope.
type Registry struct {
	baseCtx context.Context
	factory ChatFactory
	logger  *slog.Logger

	mu    sync.Mutex
	chats map[string]*managedChat
}

// NewRegistry builds an empty registry. Scopes run under baseCtx, not under
// whatever short-lived context happened to open them.
func NewRegistry(baseCtx context.Context, factory ChatFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		baseCtx: baseCtx,
		factory: factory,
		logger:  logger.With(slog.String("component", "chat_registry")),
		chats:   make(map[string]*managedChat),
	}
}

func chatKey(jobID int64, applicationID *int64) string {
	if applicationID != nil {
		return fmt.Sprintf("%d/%d", jobID, *applicationID)
	}
	return fmt.Sprintf("%d", jobID)
}

// Open starts a chat scope for the conversation, or returns the running one.
// The scope runs until Close or the registry's base context is cancelled.
func (r *Registry) Open(jobID int64, applicationID *int64) (*Chat, error) {
	key := chatKey(jobID, applicationID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if managed, ok := r.chats[key]; ok {
		return managed.chat, nil
	}

	chat, err := r.factory(jobID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat %s: %w", key, err)
	}

	runCtx, cancel := context.WithCancel(r.baseCtx)
	managed := &managedChat{chat: chat, cancel: cancel, done: make(chan struct{})}
	r.chats[key] = managed

	go func() {
		defer close(managed.done)
		if err := chat.Run(runCtx); err != nil {
			r.logger.Error("Chat scope exited with error",
				slog.String("conversation", key), slog.Any("error", err))
		}
	}()

	r.logger.Info("Chat opened", slog.String("conversation", key))
	return chat, nil
}

// Get returns the running scope for a conversation, if any.
func (r *Registry) Get(jobID int64, applicationID *int64) (*Chat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	managed, ok := r.chats[chatKey(jobID, applicationID)]
	if !ok {
		return nil, false
	}
	return managed.chat, true
}

// Close stops one conversation and returns its unresolved optimistic sends
// so the caller can surface what was never delivered.
func (r *Registry) Close(jobID int64, applicationID *int64) ([]reconcile.PendingMessage, bool) {
	key := chatKey(jobID, applicationID)

	r.mu.Lock()
	managed, ok := r.chats[key]
	if ok {
		delete(r.chats, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	managed.cancel()
	<-managed.done
	unsent := managed.chat.Drain()
	if len(unsent) > 0 {
		r.logger.Warn("Chat closed with unsent messages",
			slog.String("conversation", key), slog.Int("count", len(unsent)))
	} else {
		r.logger.Info("Chat closed", slog.String("conversation", key))
	}
	return unsent, true
}

// CloseAll stops every conversation.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.chats))
	managed := make([]*managedChat, 0, len(r.chats))
	for key, m := range r.chats {
		keys = append(keys, key)
		managed = append(managed, m)
		delete(r.chats, key)
	}
	r.mu.Unlock()

	for i, m := range managed {
		m.cancel()
		<-m.done
		if unsent := m.chat.Drain(); len(unsent) > 0 {
			r.logger.Warn("Chat closed with unsent messages",
				slog.String("conversation", keys[i]), slog.Int("count", len(unsent)))
		}
	}
}
