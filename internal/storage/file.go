package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	logx "sigrelay/pkg/logx"
)

// fileStore appends rows to a JSON Lines file. IDs continue from the last
// row found on open.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	f      *os.File
	lastID int64
}

// fileRecord is the on-disk line. ReceivedAt is kept as text so the file
// reads the same as the sqlite column.
type fileRecord struct {
	ID         int64  `json:"id"`
	ReceivedAt string `json:"received_at"`
	Ticker     string `json:"ticker,omitempty"`
	Action     string `json:"action,omitempty"`
	Price      string `json:"price,omitempty"`
	StopLoss   string `json:"sl,omitempty"`
	TakeProfit string `json:"tp,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`
	RawPayload string `json:"raw_payload"`
}

func (r fileRecord) row() SignalRow {
	return SignalRow{
		ID:         r.ID,
		ReceivedAt: parseReceivedAt(r.ReceivedAt),
		Ticker:     r.Ticker,
		Action:     r.Action,
		Price:      r.Price,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Timeframe:  r.Timeframe,
		RawPayload: r.RawPayload,
	}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var lastID int64
	err := scanRecords(path, func(r fileRecord) { lastID = max(lastID, r.ID) })
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("path", path), logx.Int64("last_id", lastID))
	return &fileStore{log: log, path: path, f: f, lastID: lastID}, nil
}

// scanRecords calls fn for every decodable line. Corrupt lines are skipped.
func scanRecords(path string, fn func(fileRecord)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r fileRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == 0 {
			continue
		}
		fn(r)
	}
	return sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := multierr.Append(s.f.Sync(), s.f.Close())
	s.f = nil
	return err
}

func (s *fileStore) AppendSignal(ctx context.Context, r SignalRow) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrDisabled
	}

	id := s.lastID + 1
	b, err := json.Marshal(fileRecord{
		ID:         id,
		ReceivedAt: formatReceivedAt(r.ReceivedAt),
		Ticker:     r.Ticker,
		Action:     r.Action,
		Price:      r.Price,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Timeframe:  r.Timeframe,
		RawPayload: r.RawPayload,
	})
	if err != nil {
		return 0, err
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return 0, err
	}
	s.lastID = id
	return id, nil
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]SignalRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrDisabled
	}

	ring := make([]fileRecord, 0, limit)
	err := scanRecords(s.path, func(r fileRecord) {
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, r)
	})
	if err != nil {
		return nil, err
	}
	out := make([]SignalRow, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[i].row())
	}
	return out, nil
}
