package state

import (
	"sort"
	"sync"
	"time"

	"tilewatch/internal/logger"
)

// CommandState is the lifecycle stage of one outbound command.
type CommandState int

const (
	CommandIssued CommandState = iota
	CommandAcknowledged
	CommandCompleted
	CommandTimedOut
)

// String returns a human-readable state name.
func (s CommandState) String() string {
	switch s {
	case CommandIssued:
		return "issued"
	case CommandAcknowledged:
		return "acknowledged"
	case CommandCompleted:
		return "completed"
	case CommandTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts no further transitions.
func (s CommandState) Terminal() bool {
	return s == CommandCompleted || s == CommandTimedOut
}

// DefaultEstimatedMS is assumed when the controller acknowledges without an
// estimate.
const DefaultEstimatedMS = 500

// Default sweep policy. An AckTimeout of 0 disables timeouts.
const (
	DefaultAckTimeout = 10 * time.Second
	DefaultRetention  = 30 * time.Second
)

// CommandRecord is the tracked progression of one outbound command.
type CommandRecord struct {
	ID          string
	State       CommandState
	EstimatedMS int64
	IssuedAt    time.Time
	FinishedAt  time.Time // zero until a terminal state is reached
	Result      string    // terminal status, set once on completion
}

// Tracker follows each command through issued → acknowledged → completed,
// with issued → timed_out when no acknowledgement arrives in time. Records
// only move forward; messages for terminal commands are logged and dropped.
// Acks and results for unseen ids synthesize a record rather than erroring,
// since bookkeeping may be lost across reconnects.
type Tracker struct {
	mu         sync.RWMutex
	records    map[string]*CommandRecord
	ackTimeout time.Duration
	retention  time.Duration
	log        logger.Logger
	now        func() time.Time
}

// NewTracker creates a tracker. ackTimeout 0 disables acknowledgement
// timeouts; retention 0 keeps completed records forever.
func NewTracker(ackTimeout, retention time.Duration, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Noop()
	}
	return &Tracker{
		records:    make(map[string]*CommandRecord),
		ackTimeout: ackTimeout,
		retention:  retention,
		log:        log,
		now:        time.Now,
	}
}

// Issue records a newly sent command.
func (t *Tracker) Issue(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; exists {
		t.log.Warn("command %s issued twice, keeping existing record", id)
		return
	}
	t.records[id] = &CommandRecord{
		ID:          id,
		State:       CommandIssued,
		EstimatedMS: DefaultEstimatedMS,
		IssuedAt:    t.now(),
	}
}

// Acknowledge moves a command from issued to acknowledged. An ack for an
// unseen id creates the record directly in acknowledged state. Returns the
// record's state and whether it changed.
func (t *Tracker) Acknowledge(id string, estimatedMS int64, hasEstimate bool) (CommandState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		rec = &CommandRecord{
			ID:          id,
			State:       CommandAcknowledged,
			EstimatedMS: DefaultEstimatedMS,
			IssuedAt:    t.now(),
		}
		if hasEstimate {
			rec.EstimatedMS = estimatedMS
		}
		t.records[id] = rec
		t.log.Debug("ack for unknown command %s, synthesized record", id)
		return rec.State, true
	}

	if rec.State != CommandIssued {
		t.log.Debug("late ack for command %s in state %s, ignored", id, rec.State)
		return rec.State, false
	}

	rec.State = CommandAcknowledged
	if hasEstimate {
		rec.EstimatedMS = estimatedMS
	}
	return rec.State, true
}

// Complete moves a command to completed with the given terminal status.
// A result for an unseen id creates the record directly in completed state.
func (t *Tracker) Complete(id, result string) (CommandState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		rec = &CommandRecord{
			ID:          id,
			State:       CommandCompleted,
			EstimatedMS: DefaultEstimatedMS,
			IssuedAt:    t.now(),
			FinishedAt:  t.now(),
			Result:      result,
		}
		t.records[id] = rec
		t.log.Debug("result for unknown command %s, synthesized completed record", id)
		return rec.State, true
	}

	if rec.State.Terminal() {
		t.log.Debug("late result for command %s in state %s, ignored", id, rec.State)
		return rec.State, false
	}

	rec.State = CommandCompleted
	rec.FinishedAt = t.now()
	rec.Result = result
	return rec.State, true
}

// Sweep applies time-based transitions: issued commands past the ack timeout
// move to timed_out, and terminal records past the retention window are
// archived (dropped). Returns the ids that timed out. Callers drive this from
// a ticker; tests call it directly with a fabricated now.
func (t *Tracker) Sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var timedOut []string
	for id, rec := range t.records {
		if t.ackTimeout > 0 && rec.State == CommandIssued && now.Sub(rec.IssuedAt) > t.ackTimeout {
			rec.State = CommandTimedOut
			rec.FinishedAt = now
			timedOut = append(timedOut, id)
			t.log.Warn("command %s not acknowledged within %s, timed out", id, t.ackTimeout)
			continue
		}
		if t.retention > 0 && rec.State.Terminal() && !rec.FinishedAt.IsZero() && now.Sub(rec.FinishedAt) > t.retention {
			delete(t.records, id)
		}
	}
	sort.Strings(timedOut)
	return timedOut
}

// Get returns a copy of the record for a command id.
func (t *Tracker) Get(id string) (CommandRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return CommandRecord{}, false
	}
	return *rec, true
}

// Records returns copies of all tracked records, oldest issued first.
func (t *Tracker) Records() []CommandRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CommandRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

// SetClock overrides the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
