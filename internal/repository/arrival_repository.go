package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linea-events/linea-auth/internal/domain"
)

// ArrivalRepository persists per-registration arrival records. MarkArrived
// follows the same atomic conditional-update pattern as token consumption.
type ArrivalRepository interface {
	Create(ctx context.Context, rec *domain.ArrivalRecord) error
	FindByHash(ctx context.Context, hash string) (*domain.ArrivalRecord, error)
	// MarkArrived sets arrived_at exactly once. When the row was already
	// marked it returns the record with the original timestamp and
	// alreadyArrived = true. Unknown hashes fail with
	// domain.ErrArrivalNotFound.
	MarkArrived(ctx context.Context, hash string) (rec *domain.ArrivalRecord, alreadyArrived bool, err error)
}

// EventDirectory exposes the platform event rows this subsystem reads:
// display titles and owner IDs for scan authorization.
type EventDirectory interface {
	Get(ctx context.Context, eventID int64) (*domain.EventInfo, error)
}

type arrivalRepository struct {
	pool *pgxpool.Pool
}

func NewArrivalRepository(pool *pgxpool.Pool) ArrivalRepository {
	return &arrivalRepository{pool: pool}
}

func (r *arrivalRepository) Create(ctx context.Context, rec *domain.ArrivalRecord) error {
	const q = `
		INSERT INTO arrival_records (arrival_hash, event_id, waitlist_entry_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q, rec.Hash, rec.EventID, rec.WaitlistEntryID, rec.Email).Scan(&rec.CreatedAt)
}

func (r *arrivalRepository) FindByHash(ctx context.Context, hash string) (*domain.ArrivalRecord, error) {
	const q = `
		SELECT event_id, waitlist_entry_id, email, arrived_at, created_at
		FROM arrival_records
		WHERE arrival_hash = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec := &domain.ArrivalRecord{Hash: hash}
	err := r.pool.QueryRow(ctx, q, hash).Scan(
		&rec.EventID, &rec.WaitlistEntryID, &rec.Email, &rec.ArrivedAt, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrArrivalNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *arrivalRepository) MarkArrived(ctx context.Context, hash string) (*domain.ArrivalRecord, bool, error) {
	const q = `
		UPDATE arrival_records
		SET arrived_at = now()
		WHERE arrival_hash = $1
		  AND arrived_at IS NULL
		RETURNING event_id, waitlist_entry_id, email, arrived_at, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec := &domain.ArrivalRecord{Hash: hash}
	err := r.pool.QueryRow(ctx, q, hash).Scan(
		&rec.EventID, &rec.WaitlistEntryID, &rec.Email, &rec.ArrivedAt, &rec.CreatedAt,
	)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Lost the conditional update: either already marked or unknown.
	existing, findErr := r.FindByHash(ctx, hash)
	if findErr != nil {
		return nil, false, findErr
	}
	return existing, true, nil
}

type eventDirectory struct {
	pool *pgxpool.Pool
}

func NewEventDirectory(pool *pgxpool.Pool) EventDirectory {
	return &eventDirectory{pool: pool}
}

func (d *eventDirectory) Get(ctx context.Context, eventID int64) (*domain.EventInfo, error) {
	const q = `SELECT id, title, owner_id FROM events WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	info := &domain.EventInfo{}
	err := d.pool.QueryRow(ctx, q, eventID).Scan(&info.ID, &info.Title, &info.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}
