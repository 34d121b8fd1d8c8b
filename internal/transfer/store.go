package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRecordNotFound indicates no such transfer or request exists.
	ErrRecordNotFound = errors.New("transfer record not found")

	// ErrStatusChanged indicates a conditional status transition lost: the
	// record was not in the expected prior status at write time.
	ErrStatusChanged = errors.New("transfer status changed")
)

// Store persists transfer records. Status transitions are single-row
// conditional writes guarded by the current status.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Transition moves a record from one status to another. When to is
	// StatusCompleted the ledger transaction id and completion time are
	// stamped. Returns ErrStatusChanged when the record was not in from.
	Transition(ctx context.Context, id, from, to, ledgerTxID string) error
	// ListByStatus returns records in the given status, oldest first.
	ListByStatus(ctx context.Context, status string) ([]Record, error)
}

// PostgresStore stores transfer records in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert creates a transfer record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("parse record id: %w", err)
	}
	senderID, err := uuid.Parse(rec.SenderID)
	if err != nil {
		return fmt.Errorf("parse sender id: %w", err)
	}
	recipientID, err := uuid.Parse(rec.RecipientID)
	if err != nil {
		return fmt.Errorf("parse recipient id: %w", err)
	}
	var expiresAt *time.Time
	if !rec.ExpiresAt.IsZero() {
		e := rec.ExpiresAt.UTC()
		expiresAt = &e
	}
	_, err = s.db.Exec(ctx, `INSERT INTO p2p_transfers (id, sender_id, recipient_id, amount, status, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, senderID, recipientID, rec.Amount, rec.Status, expiresAt, rec.CreatedAt.UTC())
	return err
}

// Get fetches a record by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	recordID, err := uuid.Parse(id)
	if err != nil {
		return Record{}, ErrRecordNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, ledger_tx_id, sender_id, recipient_id, amount, status, expires_at, completed_at, created_at
        FROM p2p_transfers WHERE id = $1`, recordID)
	return scanRecord(row)
}

// Transition performs the conditional status write.
func (s *PostgresStore) Transition(ctx context.Context, id, from, to, ledgerTxID string) error {
	recordID, err := uuid.Parse(id)
	if err != nil {
		return ErrRecordNotFound
	}
	var tag pgconn.CommandTag
	if to == StatusCompleted {
		txID, err := uuid.Parse(ledgerTxID)
		if err != nil {
			return fmt.Errorf("parse ledger tx id: %w", err)
		}
		tag, err = s.db.Exec(ctx, `UPDATE p2p_transfers
            SET status = $3, ledger_tx_id = $4, completed_at = now()
            WHERE id = $1 AND status = $2`, recordID, from, to, txID)
		if err != nil {
			return err
		}
	} else {
		tag, err = s.db.Exec(ctx, `UPDATE p2p_transfers SET status = $3
            WHERE id = $1 AND status = $2`, recordID, from, to)
		if err != nil {
			return err
		}
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrStatusChanged
	}
	return nil
}

// ListByStatus returns records in the given status, oldest first.
func (s *PostgresStore) ListByStatus(ctx context.Context, status string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT id, ledger_tx_id, sender_id, recipient_id, amount, status, expires_at, completed_at, created_at
        FROM p2p_transfers WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec         Record
		id          uuid.UUID
		ledgerTxID  *uuid.UUID
		senderID    uuid.UUID
		recipientID uuid.UUID
		expiresAt   *time.Time
		completedAt *time.Time
		createdAt   time.Time
	)
	if err := row.Scan(&id, &ledgerTxID, &senderID, &recipientID, &rec.Amount, &rec.Status, &expiresAt, &completedAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	rec.ID = id.String()
	if ledgerTxID != nil {
		rec.LedgerTxID = ledgerTxID.String()
	}
	rec.SenderID = senderID.String()
	rec.RecipientID = recipientID.String()
	if expiresAt != nil {
		rec.ExpiresAt = expiresAt.UTC()
	}
	if completedAt != nil {
		rec.CompletedAt = completedAt.UTC()
	}
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}
