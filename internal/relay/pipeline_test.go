package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigrelay/internal/alert"
	"sigrelay/internal/eventbus"
	"sigrelay/internal/notifier"
	"sigrelay/internal/storage"
	logx "sigrelay/pkg/logx"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	texts  []string
	status notifier.Status
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, text string) notifier.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.status == 0 {
		return notifier.StatusQueued
	}
	return f.status
}

type fakeLog struct {
	mu   sync.Mutex
	rows []storage.SignalRow
	err  error
}

func (f *fakeLog) AppendSignal(ctx context.Context, r storage.SignalRow) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.rows = append(f.rows, r)
	return int64(len(f.rows)), nil
}

var clock = func() time.Time { return time.Date(2024, 3, 9, 20, 4, 5, 0, time.UTC) }

func newPipeline(d Dispatcher, st SignalLog, bus eventbus.Bus) *Pipeline {
	return New(Config{Secret: "S"}, d, st, bus, logx.Nop(), WithClock(clock))
}

func TestProcessJSONScenario(t *testing.T) {
	d, st := &fakeDispatcher{}, &fakeLog{}
	out := newPipeline(d, st, nil).Process(context.Background(),
		[]byte(`{"secret":"S","ticker":"XAUUSD","action":"buy","price":"1995.40"}`))

	require.True(t, out.Accepted())
	assert.Equal(t, StageResponded, out.Stage)
	assert.Equal(t, notifier.StatusQueued, out.Delivery)
	assert.Equal(t, int64(1), out.RowID)
	assert.NoError(t, out.StoreErr)

	require.Len(t, st.rows, 1)
	row := st.rows[0]
	assert.Equal(t, "XAUUSD", row.Ticker)
	assert.Equal(t, "buy", row.Action)
	assert.Equal(t, "1995.40", row.Price)
	assert.Equal(t, clock(), row.ReceivedAt)
	assert.JSONEq(t, `{"secret":"S","ticker":"XAUUSD","action":"buy","price":"1995.40"}`, row.RawPayload)

	require.Len(t, d.texts, 1)
	assert.True(t, strings.HasPrefix(d.texts[0], "<b>BUY — XAUUSD</b>\n"))
	assert.True(t, strings.HasSuffix(d.texts[0], "2024-03-09 20:04:05 UTC"))
}

func TestProcessTextScenario(t *testing.T) {
	st := &fakeLog{}
	out := newPipeline(&fakeDispatcher{}, st, nil).Process(context.Background(),
		[]byte("secret: S\nticker: EURUSD\naction: sell\nfoo: bar"))

	require.True(t, out.Accepted())
	assert.Equal(t, "EURUSD", out.Event.Ticker)
	assert.Equal(t, "SELL", out.Event.Action)
	assert.Equal(t, "foo: bar", out.Event.Note)
	require.Len(t, st.rows, 1)
	assert.Equal(t, "secret: S\nticker: EURUSD\naction: sell\nfoo: bar", st.rows[0].RawPayload)
}

func TestProcessDeniedSkipsSideEffects(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	for _, body := range []string{
		`{"ticker":"X"}`,
		`{"secret":"","ticker":"X"}`,
		`{"secret":"s","ticker":"X"}`,
		"ticker: X",
		"",
	} {
		d, st := &fakeDispatcher{}, &fakeLog{}
		out := newPipeline(d, st, bus).Process(context.Background(), []byte(body))

		assert.False(t, out.Accepted(), body)
		assert.ErrorIs(t, out.Err, alert.ErrInvalidSecret)
		assert.Equal(t, StageValidated, out.Stage)
		assert.Empty(t, d.texts, "no messaging call")
		assert.Empty(t, st.rows, "no log row")

		ev := <-events
		assert.Equal(t, TopicDenied, ev.Topic)
	}
}

func TestProcessEmptyConfiguredSecretDeniesAll(t *testing.T) {
	d, st := &fakeDispatcher{}, &fakeLog{}
	p := New(Config{}, d, st, nil, logx.Nop())
	out := p.Process(context.Background(), []byte(`{"secret":"","ticker":"X"}`))
	assert.False(t, out.Accepted())
	assert.Empty(t, st.rows)
}

func TestProcessLogsRegardlessOfDelivery(t *testing.T) {
	for _, status := range []notifier.Status{notifier.StatusNotConfigured, notifier.StatusDropped, notifier.StatusStopped} {
		st := &fakeLog{}
		out := newPipeline(&fakeDispatcher{status: status}, st, nil).Process(context.Background(), []byte("secret: S"))
		assert.True(t, out.Accepted())
		assert.Equal(t, status, out.Delivery)
		assert.Len(t, st.rows, 1, status.String())
	}

	st := &fakeLog{}
	out := newPipeline(nil, st, nil).Process(context.Background(), []byte("secret: S"))
	assert.Equal(t, notifier.StatusNotConfigured, out.Delivery)
	assert.Len(t, st.rows, 1)
}

func TestProcessStoreFailureStillAccepts(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := &fakeDispatcher{}
	out := newPipeline(d, &fakeLog{err: errors.New("disk full")}, bus).Process(context.Background(), []byte("secret: S\nticker: X"))

	assert.True(t, out.Accepted())
	assert.Equal(t, StageResponded, out.Stage)
	assert.EqualError(t, out.StoreErr, "disk full")
	assert.Len(t, d.texts, 1, "delivery is independent of logging")

	ev := <-events
	require.Equal(t, TopicAccepted, ev.Topic)
	ae := ev.Data.(AcceptedEvent)
	assert.Equal(t, "X", ae.Ticker)
	assert.Equal(t, "disk full", ae.Error)
}

func TestProcessWithoutStore(t *testing.T) {
	out := newPipeline(&fakeDispatcher{}, nil, nil).Process(context.Background(), []byte("secret: S"))
	assert.True(t, out.Accepted())
	assert.ErrorIs(t, out.StoreErr, storage.ErrDisabled)
	assert.Zero(t, out.RowID)
}

func TestProcessIgnoresCanceledRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &fakeLog{}
	out := newPipeline(&fakeDispatcher{}, st, nil).Process(ctx, []byte("secret: S"))
	assert.True(t, out.Accepted())
	assert.NoError(t, out.StoreErr)
	assert.Len(t, st.rows, 1)
}

func TestStageString(t *testing.T) {
	names := []string{"received", "normalized", "validated", "dispatched", "logged", "responded"}
	for i, n := range names {
		assert.Equal(t, n, Stage(i).String())
	}
	assert.Equal(t, "unknown", Stage(99).String())
}
