package comfy

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
)

// TrackState is the lifecycle of one tracked job on the shared event channel.
// AwaitingConnection covers the dial handshake (owned by the Dialer); a
// Tracker starts Listening and ends in exactly one of the terminal states.
type TrackState int

const (
	StateAwaitingConnection TrackState = iota
	StateListening
	// StateCompleted means the remote sent the explicit completion sentinel
	// (an executing event with a null node) for this job id.
	StateCompleted
	// StateChannelClosed means the channel died before the sentinel arrived.
	// The job's outcome is unknown; callers corroborate via history rather
	// than treating this as success.
	StateChannelClosed
)

func (s TrackState) String() string {
	switch s {
	case StateAwaitingConnection:
		return "awaiting_connection"
	case StateListening:
		return "listening"
	case StateCompleted:
		return "completed"
	case StateChannelClosed:
		return "channel_closed"
	default:
		return "unknown"
	}
}

type trackWaiter struct {
	jobID      string
	done       chan TrackState
	onProgress func(nodeID string)
}

// Tracker multiplexes completion tracking for any number of jobs over one
// long-lived event channel. Events are attributed purely by job id, so a job
// may be tracked before or after its first event arrives.
type Tracker struct {
	ch     EventChannel
	logger *infra.Logger

	mu      sync.Mutex
	closed  bool
	waiters map[string][]*trackWaiter
}

// NewTracker wraps an open event channel and starts consuming it. The caller
// keeps ownership of channel shutdown via Close.
func NewTracker(ch EventChannel, logger *infra.Logger) *Tracker {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	t := &Tracker{
		ch:      ch,
		logger:  logger,
		waiters: make(map[string][]*trackWaiter),
	}
	go t.loop()
	return t
}

// Await blocks until the job reaches a terminal state. onProgress, when
// non-nil, is invoked with each node id the remote reports as executing for
// this job. Events for other job ids on the same channel never resolve this
// await.
func (t *Tracker) Await(ctx context.Context, jobID string, onProgress func(nodeID string)) (TrackState, error) {
	w := &trackWaiter{
		jobID:      jobID,
		done:       make(chan TrackState, 1),
		onProgress: onProgress,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return StateChannelClosed, nil
	}
	t.waiters[jobID] = append(t.waiters[jobID], w)
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		t.unregister(w)
		return StateListening, ctx.Err()
	case state := <-w.done:
		return state, nil
	}
}

// Close tears down the event channel. Pending awaits resolve as
// StateChannelClosed.
func (t *Tracker) Close() error {
	return t.ch.Close()
}

func (t *Tracker) loop() {
	for {
		frame, err := t.ch.Read()
		if err != nil {
			t.shutdown()
			return
		}
		if frame.Kind != FrameText {
			continue
		}
		data, ok := parseExecuting(frame.Data)
		if !ok {
			t.logger.Debug().Msg("comfy: dropped unparseable or untracked event frame")
			continue
		}
		t.dispatch(data)
	}
}

func (t *Tracker) dispatch(data executingData) {
	t.mu.Lock()
	waiters := t.waiters[data.PromptID]
	if data.Node == nil {
		delete(t.waiters, data.PromptID)
	} else {
		waiters = append([]*trackWaiter(nil), waiters...)
	}
	t.mu.Unlock()

	if data.Node == nil {
		for _, w := range waiters {
			w.done <- StateCompleted
		}
		return
	}
	for _, w := range waiters {
		if w.onProgress != nil {
			w.onProgress(*data.Node)
		}
	}
}

func (t *Tracker) shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	pending := t.waiters
	t.waiters = make(map[string][]*trackWaiter)
	t.mu.Unlock()

	for _, waiters := range pending {
		for _, w := range waiters {
			w.done <- StateChannelClosed
		}
	}
}

func (t *Tracker) unregister(w *trackWaiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	waiters := t.waiters[w.jobID]
	for i, candidate := range waiters {
		if candidate == w {
			t.waiters[w.jobID] = append(waiters[:i:i], waiters[i+1:]...)
			break
		}
	}
	if len(t.waiters[w.jobID]) == 0 {
		delete(t.waiters, w.jobID)
	}
}
