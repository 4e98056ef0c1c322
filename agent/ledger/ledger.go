package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	// DSN is a postgres:// URL. Empty disables the ledger.
	DSN     string        `envconfig:"DSN"`
	Timeout time.Duration `split_words:"true" default:"3s"`
}

// Ledger keeps a record of confirmed bookings.
type Ledger interface {
	Record(ctx context.Context, sessionID string, res contractx.SpecialistResult) error
	Close() error
}

type NoopLedger struct{}

func (NoopLedger) Record(context.Context, string, contractx.SpecialistResult) error { return nil }
func (NoopLedger) Close() error                                                     { return nil }

// Booking is one ledger row. The reference is what the traveller sees and can
// repeat across sessions, so the row id is the key.
type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID         uuid.UUID       `bun:"id,pk,type:uuid"`
	SessionID  string          `bun:"session_id,notnull"`
	AgentType  string          `bun:"agent_type,notnull"`
	Reference  string          `bun:"reference,notnull"`
	City       string          `bun:"city"`
	TotalPrice float64         `bun:"total_price"`
	Payload    json.RawMessage `bun:"payload,type:jsonb"`
	CreatedAt  time.Time       `bun:"created_at,notnull"`
}

// NewBooking maps a booking result to a row. ok is false for results that
// carry no booking reference.
func NewBooking(sessionID string, res contractx.SpecialistResult, now time.Time) (Booking, bool, error) {
	row := Booking{
		SessionID: sessionID,
		AgentType: res.AgentType.String(),
		CreatedAt: now.UTC(),
	}
	switch d := res.Data.(type) {
	case contractx.FlightBooking:
		row.Reference, row.City, row.TotalPrice = d.BookingReference, d.DestinationCity, d.TotalPrice
	case contractx.HotelBooking:
		row.Reference, row.City, row.TotalPrice = d.BookingReference, d.City, d.TotalPrice
	case contractx.CarRental:
		row.Reference, row.City, row.TotalPrice = d.BookingReference, d.RentalCity, d.TotalPrice
	default:
		return Booking{}, false, nil
	}
	if res.Failed() || strings.TrimSpace(row.Reference) == "" {
		return Booking{}, false, nil
	}

	payload, err := json.Marshal(res.Data)
	if err != nil {
		return Booking{}, false, fmt.Errorf("%w: marshal booking: %v", contractx.ErrValidation, err)
	}
	row.ID = uuid.New()
	row.Payload = payload
	return row, true, nil
}

type BunLedger struct {
	db      *bun.DB
	timeout time.Duration
	now     func() time.Time
}

var _ Ledger = (*BunLedger)(nil)

// New returns a NoopLedger when no DSN is configured.
func New(ctx context.Context, cfg Config) (Ledger, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return NoopLedger{}, nil
	}
	return Open(ctx, cfg)
}

func Open(ctx context.Context, cfg Config) (*BunLedger, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Booking)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create bookings table: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BunLedger{db: db, timeout: timeout, now: time.Now}, nil
}

func (l *BunLedger) Record(ctx context.Context, sessionID string, res contractx.SpecialistResult) error {
	row, ok, err := NewBooking(sessionID, res, l.now())
	if err != nil || !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if _, err := l.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("ledger: insert %s: %w", row.Reference, err)
	}
	return nil
}

// Bookings lists a session's bookings, oldest first.
func (l *BunLedger) Bookings(ctx context.Context, sessionID string) ([]Booking, error) {
	var rows []Booking
	err := l.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: select bookings: %w", err)
	}
	return rows, nil
}

func (l *BunLedger) Close() error {
	return l.db.Close()
}
