// Package chat ties sessions, messages and the LLM together: it persists what
// the user says, streams the model's answer and hands the finished answer to
// the worker pool for storage.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/llm/client"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/stream"
	"github.com/papercomputeco/streamchat/pkg/worker"
)

// DefaultSessionTitle names sessions created without a title.
const DefaultSessionTitle = "New chat"

var (
	ErrNoCompleter  = errors.New("llm is not configured")
	ErrEmptyContent = errors.New("message content cannot be empty")
	ErrInvalidRole  = errors.New("message role must be user or assistant")
	ErrEmptyReply   = errors.New("llm returned an empty reply")
	ErrEmptyTitle   = errors.New("title cannot be empty")
)

// Completer is the LLM surface the service needs. *client.Client satisfies it.
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error)
	StreamTo(ctx context.Context, messages []llm.Message, sink stream.Sink) (*client.Result, error)
	Provider() string
	Model() string
}

// Enqueuer accepts persistence jobs. *worker.Pool satisfies it.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Config configures a Service.
type Config struct {
	Driver storage.Driver

	// Completer may be nil, in which case Send and Reply fail with
	// ErrNoCompleter and everything else works.
	Completer Completer

	// Jobs receives finished streamed replies. When nil, replies are stored
	// synchronously.
	Jobs Enqueuer

	// SystemPrompt is prepended to every conversation when set.
	SystemPrompt string

	// HistoryLimit caps how many stored messages are sent upstream.
	// Zero sends the whole session.
	HistoryLimit int

	Logger *slog.Logger
}

// Service manages a user's chat sessions.
type Service struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	l := cfg.Logger
	if l == nil {
		l = logger.Nop()
	}
	return &Service{cfg: cfg, logger: l, now: time.Now}
}

// Ready reports ErrNoCompleter when the service cannot produce replies.
func (s *Service) Ready() error {
	if s.cfg.Completer == nil {
		return ErrNoCompleter
	}
	return nil
}

// Sessions lists userID's sessions, most recently updated first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*storage.Session, error) {
	return s.cfg.Driver.ListSessions(ctx, userID)
}

// CreateSession starts a session. A blank title becomes DefaultSessionTitle.
func (s *Service) CreateSession(ctx context.Context, userID, title string) (*storage.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}

	now := s.now().UTC()
	sess := &storage.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.cfg.Driver.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Session returns a session owned by userID. Sessions of other users are
// reported as not found.
func (s *Service) Session(ctx context.Context, userID, id string) (*storage.Session, error) {
	sess, err := s.cfg.Driver.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}
	return sess, nil
}

// Messages returns a session's messages, oldest first.
func (s *Service) Messages(ctx context.Context, userID, sessionID string) ([]*storage.Message, error) {
	if _, err := s.Session(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.cfg.Driver.ListMessages(ctx, sessionID)
}

// AddMessage appends a message to a session.
func (s *Service) AddMessage(ctx context.Context, userID, sessionID, role, content string) (*storage.Message, error) {
	if role != llm.RoleUser && role != llm.RoleAssistant {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := s.Session(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.store(ctx, sessionID, role, content)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	if _, err := s.Session(ctx, userID, id); err != nil {
		return err
	}
	return s.cfg.Driver.DeleteSession(ctx, id)
}

// RenameSession changes a session's title.
func (s *Service) RenameSession(ctx context.Context, userID, id, title string) (*storage.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if _, err := s.Session(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.cfg.Driver.RenameSession(ctx, id, title, s.now().UTC())
}

// Send stores the user's message, streams the model's answer into sink and
// queues the answer for storage once it completes. An empty answer reaches
// the sink as an empty completion and is not stored.
func (s *Service) Send(ctx context.Context, userID, sessionID, content string, sink stream.Sink) (*client.Result, error) {
	history, err := s.prepare(ctx, userID, sessionID, content)
	if err != nil {
		sink.OnError(err)
		return nil, err
	}

	res, err := s.cfg.Completer.StreamTo(ctx, history, sink)
	if err != nil {
		return res, err
	}
	if res.Text == "" {
		s.logger.Warn("llm returned an empty reply", "session_id", sessionID)
		return res, nil
	}

	msg := s.newMessage(sessionID, llm.RoleAssistant, res.Text)
	if s.cfg.Jobs == nil {
		if err := s.cfg.Driver.AddMessage(ctx, msg); err != nil {
			return res, fmt.Errorf("storing reply: %w", err)
		}
		return res, nil
	}

	s.cfg.Jobs.Enqueue(worker.Job{
		Message:     msg,
		UserID:      userID,
		Provider:    res.Provider,
		Model:       res.Model,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
		Fragments:   res.Stats.Fragments,
		EndReason:   res.End.String(),
	})
	return res, nil
}

// Reply is the non-streaming form of Send. Both messages are stored before
// it returns.
func (s *Service) Reply(ctx context.Context, userID, sessionID, content string) (*storage.Message, error) {
	history, err := s.prepare(ctx, userID, sessionID, content)
	if err != nil {
		return nil, err
	}

	resp, err := s.cfg.Completer.Chat(ctx, history)
	if err != nil {
		return nil, err
	}

	text := resp.Message.GetText()
	if text == "" {
		return nil, ErrEmptyReply
	}
	return s.store(ctx, sessionID, llm.RoleAssistant, text)
}

// prepare validates the request, stores the user message and returns the
// conversation to send upstream.
func (s *Service) prepare(ctx context.Context, userID, sessionID, content string) ([]llm.Message, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	if _, err := s.AddMessage(ctx, userID, sessionID, llm.RoleUser, content); err != nil {
		return nil, err
	}

	stored, err := s.cfg.Driver.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if s.cfg.HistoryLimit > 0 && len(stored) > s.cfg.HistoryLimit {
		stored = stored[len(stored)-s.cfg.HistoryLimit:]
	}

	history := make([]llm.Message, 0, len(stored)+1)
	if s.cfg.SystemPrompt != "" {
		history = append(history, llm.NewTextMessage(llm.RoleSystem, s.cfg.SystemPrompt))
	}
	for _, m := range stored {
		history = append(history, llm.NewTextMessage(m.Role, m.Content))
	}
	return history, nil
}

func (s *Service) store(ctx context.Context, sessionID, role, content string) (*storage.Message, error) {
	msg := s.newMessage(sessionID, role, content)
	if err := s.cfg.Driver.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	return msg, nil
}

func (s *Service) newMessage(sessionID, role, content string) *storage.Message {
	return &storage.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
}
