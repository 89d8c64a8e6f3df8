package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Syncer runs one sync pass.
type Syncer interface {
	Sync(ctx context.Context) (Report, error)
}

// Ticker is the subset of *time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker adapts time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Scheduler triggers sync passes on a fixed interval, on every transition to
// online and on request. Passes run one at a time; triggers arriving while a
// pass is in flight are absorbed by it.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	online   <-chan bool
	log      *zap.Logger

	// NewTicker is used by Start; tests replace it.
	NewTicker func(time.Duration) Ticker
	// OnPass, when set, receives the result of every pass.
	OnPass func(Report, error)

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler returns a stopped scheduler. online may be nil.
func NewScheduler(s Syncer, interval time.Duration, online <-chan bool, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		syncer:    s,
		interval:  interval,
		online:    online,
		log:       log,
		NewTicker: NewTimeTicker,
		trigger:   make(chan struct{}, 1),
	}
}

// Start launches the scheduling loop. It must be called once.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ticker := s.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.run(ctx, "interval")
			case up, ok := <-s.online:
				if !ok {
					s.online = nil
					continue
				}
				if up {
					s.run(ctx, "online")
				}
			case <-s.trigger:
				s.run(ctx, "request")
			}
		}
	}()
}

// Trigger requests a pass without waiting for it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	rep, err := s.syncer.Sync(ctx)
	if err != nil {
		s.log.Error("sync pass failed", zap.String("trigger", reason), zap.Error(err))
	} else {
		s.log.Debug("sync pass", zap.String("trigger", reason),
			zap.Bool("offline", rep.Offline), zap.Bool("busy", rep.Busy))
	}
	// Requests that arrived during the pass were served by it.
	select {
	case <-s.trigger:
	default:
	}
	if s.OnPass != nil {
		s.OnPass(rep, err)
	}
}
