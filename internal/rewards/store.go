package rewards

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
	// ErrGrantNotFound indicates no grant matches the identifier or source.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrPointsChanged indicates a conditional points update lost: the grant's
	// points no longer matched the expected value at write time.
	ErrPointsChanged = errors.New("grant points changed")
)

// Store persists reward grants. Point mutations are single-row conditional
// writes; redemption across several grants is sequenced by the service and is
// deliberately not atomic (see Service doc).
type Store interface {
	Insert(ctx context.Context, g Grant) error
	Get(ctx context.Context, id string) (Grant, error)
	FindBySource(ctx context.Context, sourceTxID string) (Grant, error)
	// ListByUser returns the user's grants in ascending creation order.
	ListByUser(ctx context.Context, userID string) ([]Grant, error)
	// SetPoints writes points only if the stored value still equals expected.
	SetPoints(ctx context.Context, id string, expected, points int64) error
	// ListDue returns non-redemption grants with points remaining whose expiry
	// has passed as of now.
	ListDue(ctx context.Context, now time.Time) ([]Grant, error)
}

// PostgresStore stores grants in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one grant row.
func (s *PostgresStore) Insert(ctx context.Context, g Grant) error {
	id, err := uuid.Parse(g.ID)
	if err != nil {
		return fmt.Errorf("parse grant id: %w", err)
	}
	userID, err := uuid.Parse(g.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	var expiresAt *time.Time
	if !g.ExpiresAt.IsZero() {
		e := g.ExpiresAt.UTC()
		expiresAt = &e
	}
	var sourceTxID *string
	if g.SourceTxID != "" {
		sourceTxID = &g.SourceTxID
	}
	var merchantID *string
	if g.MerchantID != "" {
		merchantID = &g.MerchantID
	}
	_, err = s.db.Exec(ctx, `INSERT INTO reward_grants (id, user_id, points, source_tx_id, merchant_id, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, g.Points, sourceTxID, merchantID, expiresAt, g.CreatedAt.UTC())
	return err
}

// Get fetches one grant.
func (s *PostgresStore) Get(ctx context.Context, id string) (Grant, error) {
	grantID, err := uuid.Parse(id)
	if err != nil {
		return Grant{}, ErrGrantNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, user_id, points, source_tx_id, merchant_id, expires_at, created_at
        FROM reward_grants WHERE id = $1`, grantID)
	return scanGrant(row)
}

// FindBySource fetches the award recorded for a source transaction.
func (s *PostgresStore) FindBySource(ctx context.Context, sourceTxID string) (Grant, error) {
	row := s.db.QueryRow(ctx, `SELECT id, user_id, points, source_tx_id, merchant_id, expires_at, created_at
        FROM reward_grants WHERE source_tx_id = $1`, sourceTxID)
	return scanGrant(row)
}

// ListByUser returns the user's grants oldest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Grant, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT id, user_id, points, source_tx_id, merchant_id, expires_at, created_at
        FROM reward_grants WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

// SetPoints performs the conditional points write.
func (s *PostgresStore) SetPoints(ctx context.Context, id string, expected, points int64) error {
	grantID, err := uuid.Parse(id)
	if err != nil {
		return ErrGrantNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE reward_grants SET points = $3
        WHERE id = $1 AND points = $2`, grantID, expected, points)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrPointsChanged
	}
	return nil
}

// ListDue returns lapsed awards that still carry points.
func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]Grant, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_id, points, source_tx_id, merchant_id, expires_at, created_at
        FROM reward_grants
        WHERE points > 0 AND expires_at IS NOT NULL AND expires_at <= $1
        ORDER BY expires_at ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func collectGrants(rows pgx.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanGrant(row pgx.Row) (Grant, error) {
	var (
		g          Grant
		id         uuid.UUID
		userID     uuid.UUID
		sourceTxID *string
		merchantID *string
		expiresAt  *time.Time
		createdAt  time.Time
	)
	if err := row.Scan(&id, &userID, &g.Points, &sourceTxID, &merchantID, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, ErrGrantNotFound
		}
		return Grant{}, err
	}
	g.ID = id.String()
	g.UserID = userID.String()
	if sourceTxID != nil {
		g.SourceTxID = *sourceTxID
	}
	if merchantID != nil {
		g.MerchantID = *merchantID
	}
	if expiresAt != nil {
		g.ExpiresAt = expiresAt.UTC()
	}
	g.CreatedAt = createdAt.UTC()
	return g, nil
}
