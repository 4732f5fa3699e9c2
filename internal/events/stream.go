package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
)

// Fetcher obtains the full raw device inventory. Any error is treated as a
// connectivity failure by the poll loop.
type Fetcher interface {
	FetchData(ctx context.Context) ([]json.RawMessage, error)
}

// SplitFunc decomposes one physical device into synthetic resources. The
// bool result removes the original device from the batch.
type SplitFunc func(*afero.Device) ([]*afero.Device, bool)

// Stream is the diff and dispatch engine. It owns the raw-state cache,
// schedules recurring polls and serializes diff phases so two polls can
// never interleave.
type Stream struct {
	fetcher  Fetcher
	interval atomic.Int64 // nanoseconds
	logger   *slog.Logger
	tracker  *TaskTracker

	refreshCh chan struct{}
	cancel    context.CancelFunc
	loopDone  chan struct{}

	subMu sync.RWMutex
	subs  []*subscription

	splitMu sync.RWMutex
	splits  []SplitFunc

	pollMu   sync.Mutex // guards cache; diff-then-dispatch is not reentrant
	cache    map[string]*afero.Device
	inFlight atomic.Bool

	connMu        sync.Mutex
	everConnected bool
	disconnected  bool
}

// NewStream builds a Stream polling via fetcher every interval.
func NewStream(fetcher Fetcher, interval time.Duration, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		fetcher:   fetcher,
		logger:    logger,
		tracker:   NewTaskTracker(),
		refreshCh: make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
		cache:     map[string]*afero.Device{},
	}
	s.interval.Store(int64(interval))
	return s
}

// SetPollingInterval changes the delay between scheduled polls. Takes effect
// at the next sleep boundary.
func (s *Stream) SetPollingInterval(d time.Duration) {
	s.interval.Store(int64(d))
}

// Tracker exposes the ad-hoc task set so the composition layer can track
// work of its own against the same quiescence barrier.
func (s *Stream) Tracker() *TaskTracker {
	return s.tracker
}

// RegisterSplit adds a controller split callback applied to every polled
// device before classification.
func (s *Stream) RegisterSplit(fn SplitFunc) {
	s.splitMu.Lock()
	s.splits = append(s.splits, fn)
	s.splitMu.Unlock()
}

// Initialize performs one discovery poll, then schedules the recurring poll
// and the task sweeper. Transport failures are absorbed; polling continues
// on the next tick.
func (s *Stream) Initialize(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if err := s.PollOnce(loopCtx); err != nil {
		s.logger.Warn("initial poll failed", "err", err)
	}
	go s.tracker.RunSweeper(loopCtx)
	go s.runLoop(loopCtx)
}

// TriggerRefresh requests an immediate poll ahead of the schedule.
func (s *Stream) TriggerRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *Stream) runLoop(ctx context.Context) {
	defer close(s.loopDone)
	for {
		timer := time.NewTimer(time.Duration(s.interval.Load()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.refreshCh:
			timer.Stop()
		case <-timer.C:
		}
		if err := s.PollOnce(ctx); err != nil {
			s.logger.Warn("poll failed", "err", err)
		}
	}
}

// Stop cancels the recurring poll and the sweeper, waits for the loop to
// exit and closes every subscription.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.loopDone
	}
	s.subMu.Lock()
	subs := s.subs
	s.subs = nil
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// BlockUntilDone waits until every tracked unit of work has completed,
// including work spawned by work that was already tracked when the call was
// made.
func (s *Stream) BlockUntilDone(ctx context.Context) error {
	return s.tracker.Wait(ctx)
}

// PollOnce runs one fetch-and-diff cycle. Overlapping calls are skipped so
// two diff phases can never interleave. The returned error is informational
// for explicit callers; the scheduled loop only logs it.
func (s *Stream) PollOnce(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("poll already in flight, skipping")
		return nil
	}
	defer s.inFlight.Store(false)

	raw, err := s.fetcher.FetchData(ctx)
	if err != nil {
		s.connMu.Lock()
		firstFailure := !s.disconnected
		s.disconnected = true
		s.connMu.Unlock()
		if firstFailure {
			s.logger.Warn("polling failed, connection lost", "err", err)
			s.Emit(Event{Type: Disconnected, ReceivedAt: time.Now().UTC()})
		}
		return err
	}

	s.connMu.Lock()
	var connEvent EventType
	switch {
	case !s.everConnected:
		connEvent = Connected
	case s.disconnected:
		connEvent = Reconnected
	}
	s.everConnected = true
	s.disconnected = false
	s.connMu.Unlock()
	if connEvent != "" {
		s.Emit(Event{Type: connEvent, ReceivedAt: time.Now().UTC()})
	}

	s.Emit(Event{Type: PolledData, Raw: raw, ReceivedAt: time.Now().UTC()})
	batch, devices := s.GenerateEvents(raw)
	s.Emit(Event{Type: PolledDevices, Devices: devices, ReceivedAt: time.Now().UTC()})
	for _, ev := range batch {
		s.Emit(ev)
	}
	return nil
}

// EmitInvalidAuth publishes a credential failure reported by the request
// layer.
func (s *Stream) EmitInvalidAuth() {
	s.Emit(Event{Type: InvalidAuth, ReceivedAt: time.Now().UTC()})
}
