package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientPoints indicates the redemption exceeds the balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrDuplicateAward indicates points were already awarded for the source
	// transaction.
	ErrDuplicateAward = errors.New("points already awarded for transaction")

	// ErrNoPoints indicates the spend is below the earning threshold; no grant
	// row is recorded for it.
	ErrNoPoints = errors.New("amount earns no points")

	// ErrInvalidRedemption indicates a non-positive redemption amount.
	ErrInvalidRedemption = errors.New("invalid redemption amount")
)

const (
	// minorUnitsPerPoint is the earn rate: one point per whole currency unit.
	minorUnitsPerPoint = 100

	// discountPerPoint is the redemption value of one point in minor units.
	discountPerPoint = 1

	awardValidity  = 365 * 24 * time.Hour
	expiringWindow = 30 * 24 * time.Hour

	// setPointsRetries bounds re-reads when a per-grant conditional write
	// conflicts during redemption.
	setPointsRetries = 3
)

// PointsEarned converts a spend in minor units to points.
func PointsEarned(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount / minorUnitsPerPoint
}

// Service computes, awards and redeems loyalty points over immutable-ish grant
// rows. The balance is always derived at read time by summing unexpired
// grants. Redemption decrements consumed grants one conditional write at a
// time and then records an audit row; a crash mid-sequence can leave grants
// decremented without the audit row. That window is accepted for this
// soft-currency and is left to an operator sweep over the raw rows, unlike
// wallet balances which never tolerate it.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a rewards service.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Award grants points for a completed payment. Exactly one grant may exist per
// source transaction.
func (s *Service) Award(ctx context.Context, userID string, amount int64, sourceTxID string) error {
	points := PointsEarned(amount)
	if points <= 0 {
		return ErrNoPoints
	}

	if _, err := s.store.FindBySource(ctx, sourceTxID); err == nil {
		return ErrDuplicateAward
	} else if !errors.Is(err, ErrGrantNotFound) {
		return err
	}

	now := s.now()
	return s.store.Insert(ctx, Grant{
		ID:         uuid.NewString(),
		UserID:     userID,
		Points:     points,
		SourceTxID: sourceTxID,
		ExpiresAt:  now.Add(awardValidity),
		CreatedAt:  now,
	})
}

// Balance derives the user's points from unexpired award grants. Redemption
// audit rows are excluded: the redeemed value was already subtracted from the
// grants it consumed.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	grants, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var total int64
	for _, g := range grants {
		if g.Redemption() || g.Expired(now) {
			continue
		}
		total += g.Points
	}
	return total, nil
}

// ExpiringSoon lists award grants that still carry points and lapse within the
// next 30 days.
func (s *Service) ExpiringSoon(ctx context.Context, userID string) ([]Grant, error) {
	grants, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cutoff := now.Add(expiringWindow)
	var soon []Grant
	for _, g := range grants {
		if g.Redemption() || g.Points == 0 || g.ExpiresAt.IsZero() {
			continue
		}
		if g.ExpiresAt.After(now) && g.ExpiresAt.Before(cutoff) {
			soon = append(soon, g)
		}
	}
	return soon, nil
}

// RedeemResult reports the outcome of a redemption.
type RedeemResult struct {
	RemainingPoints    int64
	DiscountMinorUnits int64
}

// Redeem consumes points oldest-grant-first and records one negative audit
// row. Per-grant decrements are conditional writes retried from a fresh read
// on conflict.
func (s *Service) Redeem(ctx context.Context, userID string, points int64) (RedeemResult, error) {
	if points <= 0 {
		return RedeemResult{}, ErrInvalidRedemption
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}
	if points > balance {
		return RedeemResult{}, ErrInsufficientPoints
	}

	grants, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}

	now := s.now()
	remaining := points
	for _, g := range grants {
		if remaining == 0 {
			break
		}
		if g.Redemption() || g.Points == 0 || g.Expired(now) {
			continue
		}
		if err := s.consume(ctx, g, &remaining); err != nil {
			return RedeemResult{}, err
		}
	}
	if remaining > 0 {
		// Concurrent redemption drained the grants between the balance check
		// and the walk.
		return RedeemResult{}, ErrInsufficientPoints
	}

	audit := Grant{
		ID:        uuid.NewString(),
		UserID:    userID,
		Points:    -points,
		CreatedAt: s.now(),
	}
	if err := s.store.Insert(ctx, audit); err != nil {
		return RedeemResult{}, err
	}

	return RedeemResult{
		RemainingPoints:    balance - points,
		DiscountMinorUnits: points * discountPerPoint,
	}, nil
}

// ExpireOldPoints zeroes points on lapsed grants. Rows are retained for audit,
// never deleted. Returns the number of grants expired.
func (s *Service) ExpireOldPoints(ctx context.Context) (int, error) {
	due, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, g := range due {
		if err := s.store.SetPoints(ctx, g.ID, g.Points, 0); err != nil {
			if errors.Is(err, ErrPointsChanged) {
				// A concurrent redemption moved the value; the next sweep
				// picks the grant up again.
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) consume(ctx context.Context, g Grant, remaining *int64) error {
	for attempt := 0; attempt < setPointsRetries; attempt++ {
		take := g.Points
		if take > *remaining {
			take = *remaining
		}
		if take <= 0 {
			return nil
		}
		err := s.store.SetPoints(ctx, g.ID, g.Points, g.Points-take)
		if err == nil {
			*remaining -= take
			return nil
		}
		if !errors.Is(err, ErrPointsChanged) {
			return err
		}
		fresh, err := s.store.Get(ctx, g.ID)
		if err != nil {
			return err
		}
		g = fresh
	}
	return ErrPointsChanged
}
