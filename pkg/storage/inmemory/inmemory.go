// Package inmemory provides a map-backed storage.Driver for tests and
// single-process use.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/streamchat/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	profiles map[string]*storage.Profile
	sessions map[string]*storage.Session

	// messages holds each session's messages in insertion order
	messages map[string][]*storage.Message
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		profiles: make(map[string]*storage.Profile),
		sessions: make(map[string]*storage.Session),
		messages: make(map[string][]*storage.Message),
	}
}

func (d *Driver) CreateProfile(_ context.Context, p *storage.Profile) error {
	if p == nil {
		return errors.New("cannot store nil profile")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.profiles[p.ID]; ok {
		return storage.ErrConflict
	}
	for _, existing := range d.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return storage.ErrConflict
		}
	}

	cp := *p
	d.profiles[p.ID] = &cp
	return nil
}

func (d *Driver) GetProfile(_ context.Context, id string) (*storage.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "profile", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (d *Driver) GetProfileByEmail(_ context.Context, email string) (*storage.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range d.profiles {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.NotFoundError{Kind: "profile", ID: email}
}

func (d *Driver) UpdateProfile(_ context.Context, p *storage.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.profiles[p.ID]
	if !ok {
		return storage.NotFoundError{Kind: "profile", ID: p.ID}
	}
	existing.Username = p.Username
	existing.PasswordHash = p.PasswordHash
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

func (d *Driver) CreateSession(_ context.Context, s *storage.Session) error {
	if s == nil {
		return errors.New("cannot store nil session")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[s.ID]; ok {
		return storage.ErrConflict
	}
	cp := *s
	d.sessions[s.ID] = &cp
	return nil
}

func (d *Driver) GetSession(_ context.Context, id string) (*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}
	cp := *s
	return &cp, nil
}

func (d *Driver) ListSessions(_ context.Context, userID string) ([]*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []*storage.Session{}
	for _, s := range d.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}

	slices.SortStableFunc(out, func(a, b *storage.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (d *Driver) RenameSession(_ context.Context, id, title string, at time.Time) (*storage.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}
	s.Title = title
	s.UpdatedAt = at
	cp := *s
	return &cp, nil
}

func (d *Driver) DeleteSession(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return storage.NotFoundError{Kind: "session", ID: id}
	}
	delete(d.messages, id)
	delete(d.sessions, id)
	return nil
}

func (d *Driver) AddMessage(_ context.Context, m *storage.Message) error {
	if m == nil {
		return errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[m.SessionID]
	if !ok {
		return storage.NotFoundError{Kind: "session", ID: m.SessionID}
	}

	cp := *m
	d.messages[m.SessionID] = append(d.messages[m.SessionID], &cp)
	if m.CreatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = m.CreatedAt
	}
	return nil
}

func (d *Driver) ListMessages(_ context.Context, sessionID string) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msgs := d.messages[sessionID]
	out := make([]*storage.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}

	slices.SortStableFunc(out, func(a, b *storage.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
