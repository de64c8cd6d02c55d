// Package entdriver implements storage.Driver on top of ent's SQL dialect
// driver and query builders. It is database-agnostic and is embedded by the
// sqlite and postgres drivers, which own opening the connection and the DDL.
package entdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/streamchat/pkg/storage"
)

const (
	profilesTable = "profiles"
	sessionsTable = "chat_sessions"
	messagesTable = "chat_messages"
)

var (
	profileColumns = []string{"id", "email", "username", "password_hash", "created_at", "updated_at"}
	sessionColumns = []string{"id", "user_id", "title", "created_at", "updated_at"}
	messageColumns = []string{"id", "session_id", "role", "content", "created_at"}
)

// EntDriver provides storage operations using an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver
}

// New wraps drv.
func New(drv *entsql.Driver) *EntDriver {
	return &EntDriver{Driver: drv}
}

// Migrate executes DDL statements in order.
func (ed *EntDriver) Migrate(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		var res sql.Result
		if err := ed.Driver.Exec(ctx, stmt, []any{}, &res); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

func (ed *EntDriver) CreateProfile(ctx context.Context, p *storage.Profile) error {
	if p == nil {
		return errors.New("cannot store nil profile")
	}

	return ed.withTx(ctx, func(tx dialect.ExecQuerier) error {
		existing, err := ed.queryProfile(ctx, tx, entsql.EQ("email", p.Email))
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrConflict
		}

		query, args := ed.builder().Insert(profilesTable).
			Columns(profileColumns...).
			Values(p.ID, p.Email, p.Username, p.PasswordHash, p.CreatedAt.UTC(), p.UpdatedAt.UTC()).
			Query()
		return exec(ctx, tx, query, args)
	})
}

func (ed *EntDriver) GetProfile(ctx context.Context, id string) (*storage.Profile, error) {
	p, err := ed.queryProfile(ctx, ed.Driver, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storage.NotFoundError{Kind: "profile", ID: id}
	}
	return p, nil
}

func (ed *EntDriver) GetProfileByEmail(ctx context.Context, email string) (*storage.Profile, error) {
	p, err := ed.queryProfile(ctx, ed.Driver, entsql.EQ("email", email))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storage.NotFoundError{Kind: "profile", ID: email}
	}
	return p, nil
}

func (ed *EntDriver) UpdateProfile(ctx context.Context, p *storage.Profile) error {
	query, args := ed.builder().Update(profilesTable).
		Set("username", p.Username).
		Set("password_hash", p.PasswordHash).
		Set("updated_at", p.UpdatedAt.UTC()).
		Where(entsql.EQ("id", p.ID)).
		Query()

	n, err := execAffected(ctx, ed.Driver, query, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFoundError{Kind: "profile", ID: p.ID}
	}
	return nil
}

func (ed *EntDriver) CreateSession(ctx context.Context, s *storage.Session) error {
	if s == nil {
		return errors.New("cannot store nil session")
	}

	existing, err := ed.querySessions(ctx, ed.Driver, entsql.EQ("id", s.ID))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return storage.ErrConflict
	}

	query, args := ed.builder().Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(s.ID, s.UserID, s.Title, s.CreatedAt.UTC(), s.UpdatedAt.UTC()).
		Query()
	return exec(ctx, ed.Driver, query, args)
}

func (ed *EntDriver) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	sessions, err := ed.querySessions(ctx, ed.Driver, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}
	return sessions[0], nil
}

func (ed *EntDriver) ListSessions(ctx context.Context, userID string) ([]*storage.Session, error) {
	return ed.querySessions(ctx, ed.Driver, entsql.EQ("user_id", userID))
}

func (ed *EntDriver) RenameSession(ctx context.Context, id, title string, at time.Time) (*storage.Session, error) {
	query, args := ed.builder().Update(sessionsTable).
		Set("title", title).
		Set("updated_at", at.UTC()).
		Where(entsql.EQ("id", id)).
		Query()

	n, err := execAffected(ctx, ed.Driver, query, args)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, storage.NotFoundError{Kind: "session", ID: id}
	}
	return ed.GetSession(ctx, id)
}

func (ed *EntDriver) DeleteSession(ctx context.Context, id string) error {
	return ed.withTx(ctx, func(tx dialect.ExecQuerier) error {
		query, args := ed.builder().Delete(messagesTable).
			Where(entsql.EQ("session_id", id)).
			Query()
		if err := exec(ctx, tx, query, args); err != nil {
			return err
		}

		query, args = ed.builder().Delete(sessionsTable).
			Where(entsql.EQ("id", id)).
			Query()
		n, err := execAffected(ctx, tx, query, args)
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.NotFoundError{Kind: "session", ID: id}
		}
		return nil
	})
}

func (ed *EntDriver) AddMessage(ctx context.Context, m *storage.Message) error {
	if m == nil {
		return errors.New("cannot store nil message")
	}

	return ed.withTx(ctx, func(tx dialect.ExecQuerier) error {
		sessions, err := ed.querySessions(ctx, tx, entsql.EQ("id", m.SessionID))
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return storage.NotFoundError{Kind: "session", ID: m.SessionID}
		}

		query, args := ed.builder().Insert(messagesTable).
			Columns(messageColumns...).
			Values(m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt.UTC()).
			Query()
		if err := exec(ctx, tx, query, args); err != nil {
			return err
		}

		if !m.CreatedAt.After(sessions[0].UpdatedAt) {
			return nil
		}
		query, args = ed.builder().Update(sessionsTable).
			Set("updated_at", m.CreatedAt.UTC()).
			Where(entsql.EQ("id", m.SessionID)).
			Query()
		return exec(ctx, tx, query, args)
	})
}

func (ed *EntDriver) ListMessages(ctx context.Context, sessionID string) ([]*storage.Message, error) {
	b := ed.builder()
	query, args := b.Select(messageColumns...).
		From(b.Table(messagesTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Asc("created_at")).
		Query()

	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*storage.Message{}
	for rows.Next() {
		m := &storage.Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) queryProfile(ctx context.Context, q dialect.ExecQuerier, where *entsql.Predicate) (*storage.Profile, error) {
	b := ed.builder()
	query, args := b.Select(profileColumns...).
		From(b.Table(profilesTable)).
		Where(where).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p := &storage.Profile{}
	if err := rows.Scan(&p.ID, &p.Email, &p.Username, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return p, nil
}

func (ed *EntDriver) querySessions(ctx context.Context, q dialect.ExecQuerier, where *entsql.Predicate) ([]*storage.Session, error) {
	b := ed.builder()
	query, args := b.Select(sessionColumns...).
		From(b.Table(sessionsTable)).
		Where(where).
		OrderBy(entsql.Desc("updated_at")).
		Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []*storage.Session{}
	for rows.Next() {
		s := &storage.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (ed *EntDriver) withTx(ctx context.Context, fn func(tx dialect.ExecQuerier) error) error {
	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rerr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func exec(ctx context.Context, q dialect.ExecQuerier, query string, args []any) error {
	_, err := execAffected(ctx, q, query, args)
	return err
}

func execAffected(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
