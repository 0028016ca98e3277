package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values: "sqlite" (default), "file", "mysql", "none".
type Config struct {
	Driver string
	// Path is the sqlite database or JSONL file.
	Path string
	// DSN is the MySQL data source name (mysql only).
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SignalRow is one logged alert. Rows are write-once; empty strings are
// stored as NULL where the backend supports it.
type SignalRow struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Ticker     string    `json:"ticker,omitempty"`
	Action     string    `json:"action,omitempty"`
	Price      string    `json:"price,omitempty"`
	StopLoss   string    `json:"sl,omitempty"`
	TakeProfit string    `json:"tp,omitempty"`
	Timeframe  string    `json:"timeframe,omitempty"`
	RawPayload string    `json:"raw_payload"`
}

// Store is the persistence API used by the relay and the CLI.
type Store interface {
	// AppendSignal inserts r and returns its assigned ID.
	AppendSignal(ctx context.Context, r SignalRow) (int64, error)
	// Recent returns up to limit rows, newest first.
	Recent(ctx context.Context, limit int) ([]SignalRow, error)
	Close() error
}

// receivedAtLayout is the text form of SignalRow.ReceivedAt in every backend.
const receivedAtLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatReceivedAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(receivedAtLayout)
}

func parseReceivedAt(s string) time.Time {
	t, err := time.Parse(receivedAtLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

const defaultRecentLimit = 20

func clampLimit(n int) int {
	if n <= 0 {
		return defaultRecentLimit
	}
	return min(n, 1000)
}
