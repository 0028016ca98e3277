// Package relay runs one webhook body through normalize, authorize, format,
// dispatch and log.
package relay

import (
	"context"
	"errors"
	"time"

	"sigrelay/internal/alert"
	"sigrelay/internal/eventbus"
	"sigrelay/internal/notifier"
	"sigrelay/internal/storage"
	logx "sigrelay/pkg/logx"
)

// Dispatcher hands formatted text to delivery without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) notifier.Status
}

// SignalLog appends accepted alerts.
type SignalLog interface {
	AppendSignal(ctx context.Context, r storage.SignalRow) (int64, error)
}

// Stage is a step of Process, in order.
type Stage int

const (
	StageReceived Stage = iota
	StageNormalized
	StageValidated
	StageDispatched
	StageLogged
	StageResponded
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageNormalized:
		return "normalized"
	case StageValidated:
		return "validated"
	case StageDispatched:
		return "dispatched"
	case StageLogged:
		return "logged"
	case StageResponded:
		return "responded"
	default:
		return "unknown"
	}
}

const (
	TopicAccepted eventbus.Topic = "relay.accepted"
	TopicDenied   eventbus.Topic = "relay.denied"
)

// Outcome is the result of one Process call.
type Outcome struct {
	// Stage is the last stage reached. A denied request stops at StageValidated.
	Stage Stage
	Event alert.Event
	// Err is alert.ErrInvalidSecret for a denied request and nil otherwise.
	Err      error
	Delivery notifier.Status
	RowID    int64
	// StoreErr is the logging failure, if any. It never changes the response.
	StoreErr error
}

func (o Outcome) Accepted() bool { return o.Err == nil }

// AcceptedEvent is the Data of relay.accepted.
type AcceptedEvent struct {
	Ticker   string              `json:"ticker,omitempty"`
	Action   string              `json:"action,omitempty"`
	Format   alert.PayloadFormat `json:"format"`
	Inner    string              `json:"inner"`
	Delivery string              `json:"delivery"`
	RowID    int64               `json:"row_id,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// DeniedEvent is the Data of relay.denied.
type DeniedEvent struct {
	Format    alert.PayloadFormat `json:"format"`
	HasSecret bool                `json:"has_secret"`
}

type Config struct {
	Secret string
	// StoreTimeout bounds the log append (default 5s).
	StoreTimeout time.Duration
}

type Pipeline struct {
	cfg       Config
	formatter alert.Formatter
	dispatch  Dispatcher
	store     SignalLog
	bus       eventbus.Bus
	log       logx.Logger
	now       func() time.Time
}

type Option func(*Pipeline)

// WithClock replaces time.Now for receipt and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a pipeline. d and st may be nil; the matching stage is then
// skipped.
func New(cfg Config, d Dispatcher, st SignalLog, bus eventbus.Bus, log logx.Logger, opts ...Option) *Pipeline {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		cfg:      cfg,
		dispatch: d,
		store:    st,
		bus:      bus,
		log:      log.With(logx.String("comp", "relay")),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.formatter = alert.Formatter{Now: p.now}
	return p
}

// Process handles one body. Only a secret mismatch makes the outcome
// non-accepted; delivery and logging failures are recorded on the outcome.
func (p *Pipeline) Process(ctx context.Context, body []byte) Outcome {
	receivedAt := p.now().UTC()
	out := Outcome{Stage: StageReceived}
	p.stage(out.Stage)

	out.Event = alert.Normalize(body)
	out.Stage = StageNormalized
	p.stage(out.Stage, logx.String("format", string(out.Event.Format)), logx.String("inner", out.Event.Inner.String()))

	out.Stage = StageValidated
	if err := alert.Authorize(out.Event, p.cfg.Secret); err != nil {
		out.Err = err
		p.log.Warn("webhook rejected", logx.Err(err), logx.String("format", string(out.Event.Format)),
			logx.Bool("has_secret", out.Event.Secret != ""))
		p.bus.Publish(eventbus.Event{Topic: TopicDenied, Time: receivedAt, Data: DeniedEvent{
			Format:    out.Event.Format,
			HasSecret: out.Event.Secret != "",
		}})
		return out
	}
	p.stage(out.Stage)

	// Side effects outlive the request; a disconnecting caller must not cancel them.
	bg := context.WithoutCancel(ctx)

	out.Delivery = notifier.StatusNotConfigured
	if p.dispatch != nil {
		out.Delivery = p.dispatch.Dispatch(bg, p.formatter.Format(out.Event))
	}
	out.Stage = StageDispatched
	p.stage(out.Stage, logx.String("delivery", out.Delivery.String()))

	if p.store != nil {
		sctx, cancel := context.WithTimeout(bg, p.cfg.StoreTimeout)
		out.RowID, out.StoreErr = p.store.AppendSignal(sctx, rowFor(out.Event, receivedAt))
		cancel()
	} else {
		out.StoreErr = storage.ErrDisabled
	}
	if out.StoreErr != nil && !errors.Is(out.StoreErr, storage.ErrDisabled) {
		p.log.Error("signal log append failed", logx.Err(out.StoreErr), logx.String("ticker", out.Event.Ticker))
	}
	out.Stage = StageLogged
	p.stage(out.Stage, logx.Int64("row_id", out.RowID))

	ae := AcceptedEvent{
		Ticker:   out.Event.Ticker,
		Action:   out.Event.Action,
		Format:   out.Event.Format,
		Inner:    out.Event.Inner.String(),
		Delivery: out.Delivery.String(),
		RowID:    out.RowID,
	}
	if out.StoreErr != nil {
		ae.Error = out.StoreErr.Error()
	}
	p.bus.Publish(eventbus.Event{Topic: TopicAccepted, Time: receivedAt, Data: ae})

	out.Stage = StageResponded
	p.log.Info("alert relayed",
		logx.String("ticker", out.Event.Ticker),
		logx.String("action", out.Event.Action),
		logx.String("delivery", out.Delivery.String()),
		logx.Int64("row_id", out.RowID))
	return out
}

func (p *Pipeline) stage(s Stage, fields ...logx.Field) {
	if !p.log.Enabled(logx.LevelDebug) {
		return
	}
	p.log.Debug("relay stage", append([]logx.Field{logx.String("stage", s.String())}, fields...)...)
}

func rowFor(ev alert.Event, at time.Time) storage.SignalRow {
	return storage.SignalRow{
		ReceivedAt: at,
		Ticker:     ev.Ticker,
		Action:     ev.Action,
		Price:      ev.Price,
		StopLoss:   ev.StopLoss,
		TakeProfit: ev.TakeProfit,
		Timeframe:  ev.Timeframe,
		RawPayload: ev.RawPayload,
	}
}
