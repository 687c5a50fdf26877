// Package postgres provides a PostgreSQL implementation of
// transport.TranscriptStore. It uses pgx/v5 connection pooling and keeps
// messages, options and errors as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

// Store is a PostgreSQL-backed TranscriptStore. Deleted transcripts are
// kept with a deleted_at timestamp and hidden from reads.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ transport.TranscriptStore = (*Store)(nil)

// New connects to PostgreSQL and, if cfg.MigrateOnStart is set, applies
// pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: cfg.Logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

func (s *Store) SaveTranscript(ctx context.Context, t *api.Transcript) error {
	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}
	optionsJSON, err := json.Marshal(t.Options)
	if err != nil {
		return fmt.Errorf("marshaling options: %w", err)
	}
	var errorJSON []byte
	if t.Error != nil {
		if errorJSON, err = json.Marshal(t.Error); err != nil {
			return fmt.Errorf("marshaling error: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcripts (
			id, tenant_id, provider, model, messages, prompt, options, reply, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		t.ID, storage.GetTenant(ctx), t.Provider, t.Model,
		messagesJSON, t.Prompt, optionsJSON, t.Reply, nullJSON(errorJSON), t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting transcript: %w", err)
	}
	return nil
}

const selectColumns = `id, provider, model, messages, prompt, options, reply, error, created_at`

func (s *Store) GetTranscript(ctx context.Context, id string) (*api.Transcript, error) {
	q := newQuery(`SELECT ` + selectColumns + ` FROM transcripts WHERE deleted_at IS NULL`)
	q.where("id = %s", id)
	q.tenant(ctx)

	t, err := scanTranscript(s.pool.QueryRow(ctx, q.String(), q.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	q := newQuery(`UPDATE transcripts SET deleted_at = now() WHERE deleted_at IS NULL`)
	q.where("id = %s", id)
	q.tenant(ctx)

	result, err := s.pool.Exec(ctx, q.String(), q.args...)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTranscripts orders by (created_at, id). A cursor that names an
// unknown or deleted transcript yields an empty page.
func (s *Store) ListTranscripts(ctx context.Context, opts transport.ListOptions) (*transport.TranscriptList, error) {
	asc := opts.Order == "asc"

	q := newQuery(`SELECT ` + selectColumns + ` FROM transcripts WHERE deleted_at IS NULL`)
	q.tenant(ctx)
	if opts.Provider != "" {
		q.where("provider = %s", opts.Provider)
	}
	if opts.Model != "" {
		q.where("model = %s", opts.Model)
	}

	// Rows after the cursor in list order sort "greater" when ascending.
	cursorCmp := ""
	switch {
	case opts.After != "" && asc, opts.Before != "" && !asc:
		cursorCmp = ">"
	case opts.After != "", opts.Before != "":
		cursorCmp = "<"
	}
	if cursorCmp != "" {
		cursor := opts.After
		if cursor == "" {
			cursor = opts.Before
		}
		q.where("(created_at, id) "+cursorCmp+
			" (SELECT created_at, id FROM transcripts WHERE id = %s AND deleted_at IS NULL)", cursor)
	}

	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	limit := opts.EffectiveLimit()
	q.sql.WriteString(" ORDER BY created_at " + dir + ", id " + dir)
	q.sql.WriteString(" LIMIT " + strconv.Itoa(limit+1))

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	data := []*api.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		data = append(data, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	result := &transport.TranscriptList{Object: "list"}
	if len(data) > limit {
		data = data[:limit]
		result.HasMore = true
	}
	result.Data = data
	if len(data) > 0 {
		result.FirstID = data[0].ID
		result.LastID = data[len(data)-1].ID
	}
	return result, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanTranscript(row pgx.Row) (*api.Transcript, error) {
	var t api.Transcript
	var messagesJSON, optionsJSON, errorJSON []byte

	if err := row.Scan(
		&t.ID, &t.Provider, &t.Model, &messagesJSON, &t.Prompt,
		&optionsJSON, &t.Reply, &errorJSON, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.Object = "transcript"
	if err := json.Unmarshal(messagesJSON, &t.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	if err := json.Unmarshal(optionsJSON, &t.Options); err != nil {
		return nil, fmt.Errorf("unmarshaling options: %w", err)
	}
	if errorJSON != nil {
		t.Error = &api.APIError{}
		if err := json.Unmarshal(errorJSON, t.Error); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
	}
	return &t, nil
}

// query builds a statement with numbered placeholders.
type query struct {
	sql  strings.Builder
	args []any
}

func newQuery(base string) *query {
	q := &query{}
	q.sql.WriteString(base)
	return q
}

// where appends "AND cond", substituting %s with the next placeholder.
func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.sql.WriteString(" AND " + fmt.Sprintf(cond, "$"+strconv.Itoa(len(q.args))))
}

// tenant scopes the query to the tenant in ctx, if any.
func (q *query) tenant(ctx context.Context) {
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		q.where("tenant_id = %s", tenantID)
	}
}

func (q *query) String() string { return q.sql.String() }

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
