package domain

import (
	"errors"
	"time"
)

// ArrivalRecord ties an unguessable scannable hash to one waitlist
// registration. It is marked arrived at most once; later scans are
// informative no-ops.
type ArrivalRecord struct {
	Hash            string     `json:"-"`
	EventID         int64      `json:"event_id"`
	WaitlistEntryID int64      `json:"waitlist_entry_id"`
	Email           string     `json:"email"`
	ArrivedAt       *time.Time `json:"arrived_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (a *ArrivalRecord) HasArrived() bool {
	return a.ArrivedAt != nil
}

type ArrivalStatus string

const (
	// Arrived means this scan won the one-time transition.
	Arrived ArrivalStatus = "ARRIVED"
	// AlreadyArrived means an earlier scan won; ArrivedAt carries the
	// original timestamp, not this scan's.
	AlreadyArrived ArrivalStatus = "ALREADY_ARRIVED"
)

type ArrivalOutcome struct {
	Status          ArrivalStatus
	EventID         int64
	WaitlistEntryID int64
	Email           string
	ArrivedAt       time.Time
}

var ErrArrivalNotFound = errors.New("arrival record not found")

// EventInfo is the slice of event data this subsystem needs from the
// platform's event store: a display title and the owner for scoping
// scan authorization.
type EventInfo struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	OwnerID int64  `json:"owner_id"`
}

var ErrEventNotFound = errors.New("event not found")
