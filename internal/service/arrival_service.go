package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/token"
	"github.com/linea-events/linea-auth/pkg/events"
	"github.com/linea-events/linea-auth/pkg/logger"
)

// ArrivalDisplay is the public payload shown on the check-in screen
// before a staff member scans.
type ArrivalDisplay struct {
	EventID        int64  `json:"event_id"`
	EventTitle     string `json:"event_title"`
	Email          string `json:"email"`
	AlreadyArrived bool   `json:"already_arrived"`
}

// ArrivalService generates per-registration arrival hashes and performs
// the one-time "mark arrived" transition. Authorization is the caller's
// job; this component trusts it.
type ArrivalService interface {
	CreateRecord(ctx context.Context, eventID, waitlistEntryID int64, email string) (*domain.ArrivalRecord, error)
	DisplayData(ctx context.Context, eventID int64, hash string) (*ArrivalDisplay, error)
	// Scan marks the record arrived exactly once. Re-scans report
	// AlreadyArrived with the original timestamp instead of erroring.
	Scan(ctx context.Context, eventID int64, hash string) (*domain.ArrivalOutcome, string, error)
	Event(ctx context.Context, eventID int64) (*domain.EventInfo, error)
}

type arrivalService struct {
	arrivals  repository.ArrivalRepository
	directory repository.EventDirectory
	publisher events.Publisher

	newHash func() string
}

func NewArrivalService(
	arrivals repository.ArrivalRepository,
	directory repository.EventDirectory,
	publisher events.Publisher,
) ArrivalService {
	return &arrivalService{
		arrivals:  arrivals,
		directory: directory,
		publisher: publisher,
		newHash:   func() string { return token.New(token.Arrival) },
	}
}

func (s *arrivalService) CreateRecord(ctx context.Context, eventID, waitlistEntryID int64, email string) (*domain.ArrivalRecord, error) {
	rec := &domain.ArrivalRecord{
		Hash:            s.newHash(),
		EventID:         eventID,
		WaitlistEntryID: waitlistEntryID,
		Email:           domain.NormalizeEmail(email),
	}
	if err := s.arrivals.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create arrival record: %w", err)
	}
	return rec, nil
}

func (s *arrivalService) DisplayData(ctx context.Context, eventID int64, hash string) (*ArrivalDisplay, error) {
	rec, err := s.arrivals.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rec.EventID != eventID {
		// A valid hash presented under the wrong event is
		// indistinguishable from an unknown one on purpose.
		return nil, domain.ErrArrivalNotFound
	}

	display := &ArrivalDisplay{
		EventID:        rec.EventID,
		Email:          rec.Email,
		AlreadyArrived: rec.HasArrived(),
	}
	if info, err := s.directory.Get(ctx, rec.EventID); err == nil {
		display.EventTitle = info.Title
	}
	return display, nil
}

func (s *arrivalService) Scan(ctx context.Context, eventID int64, hash string) (*domain.ArrivalOutcome, string, error) {
	// Scope check happens before the mark so a hash presented under the
	// wrong event cannot burn the one-time transition.
	existing, err := s.arrivals.FindByHash(ctx, hash)
	if err != nil {
		return nil, "", err
	}
	if existing.EventID != eventID {
		return nil, "", domain.ErrArrivalNotFound
	}

	rec, alreadyArrived, err := s.arrivals.MarkArrived(ctx, hash)
	if err != nil {
		return nil, "", err
	}

	outcome := &domain.ArrivalOutcome{
		Status:          domain.Arrived,
		EventID:         rec.EventID,
		WaitlistEntryID: rec.WaitlistEntryID,
		Email:           rec.Email,
		ArrivedAt:       *rec.ArrivedAt,
	}
	if alreadyArrived {
		outcome.Status = domain.AlreadyArrived
	}

	var eventTitle string
	if info, derr := s.directory.Get(ctx, rec.EventID); derr == nil {
		eventTitle = info.Title
	}

	if outcome.Status == domain.Arrived {
		if err := s.publisher.Publish(ctx, events.ArrivalScanned, events.ArrivalScannedEvent{
			EventID:         rec.EventID,
			WaitlistEntryID: rec.WaitlistEntryID,
			ArrivedAt:       outcome.ArrivedAt,
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish arrival scanned event", "error", err)
		}
	}

	return outcome, eventTitle, nil
}

func (s *arrivalService) Event(ctx context.Context, eventID int64) (*domain.EventInfo, error) {
	info, err := s.directory.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, err
		}
		logger.ErrorContext(ctx, "Event lookup failed", "error", err, "event_id", eventID)
		return nil, err
	}
	return info, nil
}
