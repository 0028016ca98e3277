// Package notifier delivers formatted alerts to the messaging endpoint from a
// bounded queue, so request handlers never wait on the remote call.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sigrelay/internal/eventbus"
	rtsup "sigrelay/internal/runtime/supervisor"
	kit "sigrelay/internal/transport"
	logx "sigrelay/pkg/logx"
)

// Service is a queue + worker pool + rate limit in front of a kit.Sender.
// Each message gets exactly one send attempt.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan string
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

// New builds a stopped service. sender may be nil when no bot token is
// configured; Dispatch then reports StatusNotConfigured.
func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:    log.With(logx.String("comp", "notifier")),
		sender: sender,
		bus:    bus,
		cfg:    cfg,
		// Burst equals the per-second rate so short spikes pass without waiting.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Configured reports whether both a sender and a destination are present.
func (s *Service) Configured() bool {
	return s.sender != nil && !s.cfg.Target.IsZero()
}

// Start launches the workers. It is idempotent and a no-op when unconfigured.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.Configured() {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan string, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// delivery is best-effort; a failing worker must not take the app down.
		rtsup.WithCancelOnError(false),
	)
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return nil
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started",
		logx.String("chat_id", s.cfg.Target.ChatID),
		logx.Int("workers", workers),
		logx.Int("queue", s.cfg.QueueSize))
}

// Stop stops intake and drains the queue until ctx expires, then cancels
// whatever is still in flight.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Dispatch calls finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		<-done
	}
}

// Dispatch enqueues text for delivery and returns immediately.
func (s *Service) Dispatch(ctx context.Context, text string) Status {
	if !s.Configured() {
		s.log.Debug("delivery skipped: telegram not configured")
		return StatusNotConfigured
	}
	if ctx != nil && ctx.Err() != nil {
		return StatusStopped
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return StatusStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- text:
		return StatusQueued
	default:
		s.log.Warn("delivery dropped: queue full", logx.Int("queue", cap(q)))
		s.publish(TopicDropped, DeliveryEvent{Error: "queue full"})
		return StatusDropped
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, text)
		}
	}
}

func (s *Service) send(ctx context.Context, text string) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	ref, err := s.sender.SendText(callCtx, s.cfg.Target, text, &kit.SendOptions{
		ParseMode:      s.cfg.ParseMode,
		DisablePreview: true,
	})
	cancel()
	latency := time.Since(start)

	if err != nil {
		s.log.Warn("telegram delivery failed", logx.Err(err), logx.Duration("latency", latency))
		s.publish(TopicFailed, DeliveryEvent{Latency: latency, Error: err.Error()})
		return
	}
	s.log.Debug("telegram delivery sent", logx.Int("message_id", ref.MessageID), logx.Duration("latency", latency))
	s.publish(TopicSent, DeliveryEvent{MessageID: ref.MessageID, Latency: latency})
}

func (s *Service) publish(topic eventbus.Topic, ev DeliveryEvent) {
	ev.ChatID = s.cfg.Target.ChatID
	ev.ThreadID = s.cfg.Target.ThreadID
	s.bus.Publish(eventbus.Event{Topic: topic, Time: time.Now(), Data: ev})
}
