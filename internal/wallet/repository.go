package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the wallet does not exist.
	ErrNotFound = errors.New("wallet not found")

	// ErrConflict indicates a conditional balance write lost a race: the row's
	// balance no longer matched the caller's expected value at write time.
	ErrConflict = errors.New("wallet balance changed")

	// ErrExists indicates the owner already has a wallet.
	ErrExists = errors.New("wallet exists")
)

// Repository persists wallets. The only mutation is CompareAndSetBalance, a
// single-row conditional write; the backing store offers no cross-row
// transactions and the engine never asks for one.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (Wallet, error)
	// CompareAndSetBalance writes newBalance only if the stored balance still
	// equals expected. Returns ErrConflict when another writer won the race.
	CompareAndSetBalance(ctx context.Context, id string, expected, newBalance int64) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet row.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return fmt.Errorf("parse wallet id: %w", err)
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return fmt.Errorf("parse owner id: %w", err)
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, balance, currency, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
        ON CONFLICT (owner_id) DO NOTHING`,
		walletID, ownerID, w.Balance, w.Currency, w.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Get fetches a wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, balance, currency, created_at, updated_at
        FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// GetByOwner fetches the wallet belonging to the given owner.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	oid, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, balance, currency, created_at, updated_at
        FROM wallets WHERE owner_id = $1`, oid)
	return scanWallet(row)
}

// CompareAndSetBalance performs the conditional write. The balance guard in the
// WHERE clause is the compare-and-set; zero rows affected means either the
// wallet is gone or another writer changed the balance first.
func (r *PostgresRepository) CompareAndSetBalance(ctx context.Context, id string, expected, newBalance int64) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $3, updated_at = now()
        WHERE id = $1 AND balance = $2`, walletID, expected, newBalance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		id        uuid.UUID
		ownerID   uuid.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &ownerID, &w.Balance, &w.Currency, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
