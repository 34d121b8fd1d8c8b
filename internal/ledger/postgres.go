package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ledger entries in PostgreSQL. Every operation is a
// single statement; status transitions are conditional updates guarded by the
// current status, so concurrent finalizers cannot both win.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger entry store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one entry row.
func (s *PostgresStore) Insert(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("parse entry id: %w", err)
	}
	walletID, err := uuid.Parse(entry.WalletID)
	if err != nil {
		return fmt.Errorf("parse wallet id: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, `INSERT INTO ledger_entries (id, wallet_id, kind, amount, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, walletID, entry.Kind, entry.Amount, entry.Status, entry.Metadata, createdAt.UTC())
	return err
}

// Get fetches one entry by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, ErrEntryNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, wallet_id, kind, amount, status, metadata, created_at
        FROM ledger_entries WHERE id = $1`, entryID)
	return scanEntry(row)
}

// MarkStatus finalizes a pending entry. The WHERE clause on status makes the
// transition a compare-and-set: zero rows affected means another caller got
// there first (or the entry is absent).
func (s *PostgresStore) MarkStatus(ctx context.Context, id, status string) error {
	if !IsTerminal(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}
	entryID, err := uuid.Parse(id)
	if err != nil {
		return ErrEntryNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE ledger_entries SET status = $2
        WHERE id = $1 AND status = $3`, entryID, status, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyFinal
	}
	return nil
}

// Annotate sets one metadata key on the entry row.
func (s *PostgresStore) Annotate(ctx context.Context, id, key, value string) error {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return ErrEntryNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE ledger_entries
        SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object($2::text, $3::text)
        WHERE id = $1`, entryID, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ListByWallet returns entries for the wallet newest first, offset paginated.
func (s *PostgresStore) ListByWallet(ctx context.Context, walletID string, filter Filter) ([]Entry, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	const query = `SELECT id, wallet_id, kind, amount, status, metadata, created_at
        FROM ledger_entries
        WHERE wallet_id = $1
          AND ($2 = '' OR kind = $2)
          AND ($3::timestamptz IS NULL OR created_at >= $3)
          AND ($4::timestamptz IS NULL OR created_at <= $4)
        ORDER BY created_at DESC, id DESC
        LIMIT $5 OFFSET $6`

	var from, to *time.Time
	if !filter.From.IsZero() {
		f := filter.From.UTC()
		from = &f
	}
	if !filter.To.IsZero() {
		t := filter.To.UTC()
		to = &t
	}

	rows, err := s.db.Query(ctx, query, wid, filter.Kind, from, to, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e         Entry
		id        uuid.UUID
		walletID  uuid.UUID
		metadata  map[string]string
		createdAt time.Time
	)
	if err := row.Scan(&id, &walletID, &e.Kind, &e.Amount, &e.Status, &metadata, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	e.ID = id.String()
	e.WalletID = walletID.String()
	e.Metadata = metadata
	e.CreatedAt = createdAt.UTC()
	return e, nil
}
