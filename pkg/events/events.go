package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linea-events/linea-auth/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	n.conn.Close()
	return nil
}

// NoopPublisher drops events. Used in memory mode and when the broker is
// unreachable at startup; auth must keep working without analytics.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, _ interface{}) error {
	logger.DebugContext(ctx, "Event dropped (no broker)", "subject", subject)
	return nil
}

func (NoopPublisher) Close() error { return nil }

// Subjects consumed by the platform's analytics aggregation.
const (
	TokenIssued    = "auth.token.issued"
	SessionCreated = "auth.session.created"
	SessionRevoked = "auth.session.revoked"
	ArrivalScanned = "arrival.scanned"
)

type TokenIssuedEvent struct {
	Email    string    `json:"email"`
	Purpose  string    `json:"purpose"`
	IssuedAt time.Time `json:"issued_at"`
}

type SessionCreatedEvent struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionRevokedEvent struct {
	UserID    int64     `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

type ArrivalScannedEvent struct {
	EventID         int64     `json:"event_id"`
	WaitlistEntryID int64     `json:"waitlist_entry_id"`
	ArrivedAt       time.Time `json:"arrived_at"`
}
