// Package lifecycle tracks the phase of a migration run and rejects transitions
// the run sequence does not allow.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/metrics"
)

// ErrInvalidTransition indicates a phase change the run sequence does not allow.
var ErrInvalidTransition = errors.New("invalid phase transition")

// Phases lists every phase in run order.
var Phases = []datacopy.Phase{
	datacopy.PhaseIdle,
	datacopy.PhaseDeleting,
	datacopy.PhaseResolvingIdentities,
	datacopy.PhaseLoading,
	datacopy.PhaseResolvingDeferredReferences,
	datacopy.PhaseDone,
	datacopy.PhaseFailed,
}

// transitions lists the phases reachable from each phase, besides PhaseFailed.
var transitions = map[datacopy.Phase][]datacopy.Phase{
	datacopy.PhaseIdle:                        {datacopy.PhaseDeleting, datacopy.PhaseResolvingIdentities, datacopy.PhaseDone},
	datacopy.PhaseDeleting:                    {datacopy.PhaseResolvingIdentities, datacopy.PhaseDone},
	datacopy.PhaseResolvingIdentities:         {datacopy.PhaseLoading},
	datacopy.PhaseLoading:                     {datacopy.PhaseResolvingDeferredReferences, datacopy.PhaseDone},
	datacopy.PhaseResolvingDeferredReferences: {datacopy.PhaseDone},
}

// Allowed reports whether a run may move from one phase to another.
// Every phase except Done and Failed may move to Failed.
func Allowed(from, to datacopy.Phase) bool {
	if from == datacopy.PhaseDone || from == datacopy.PhaseFailed {
		return false
	}
	if to == datacopy.PhaseFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is one recorded phase change.
type Transition struct {
	From datacopy.Phase
	To   datacopy.Phase
	At   time.Time
}

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Collector receives the phase gauge and phase durations (optional).
	Collector *metrics.Collector

	// Logger is for observability (optional).
	Logger datacopy.Logger
}

// Manager holds the phase of a single run. It is safe for concurrent use.
type Manager struct {
	config Config

	mu      sync.Mutex
	phase   datacopy.Phase
	entered time.Time
	history []Transition
}

// New creates a Manager in PhaseIdle.
func New(cfg Config) *Manager {
	m := &Manager{
		config:  cfg,
		phase:   datacopy.PhaseIdle,
		entered: time.Now(),
	}
	m.setGauge(datacopy.PhaseIdle)
	return m
}

// Phase returns the current phase.
func (m *Manager) Phase() datacopy.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transition moves the run to a new phase.
// Returns ErrInvalidTransition if the move is not allowed from the current phase.
func (m *Manager) Transition(ctx context.Context, to datacopy.Phase) error {
	m.mu.Lock()
	from := m.phase
	if !Allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now()
	spent := now.Sub(m.entered)
	m.phase = to
	m.entered = now
	m.history = append(m.history, Transition{From: from, To: to, At: now})
	m.mu.Unlock()

	if m.config.Collector != nil {
		m.config.Collector.ObservePhaseDuration(string(from), spent.Seconds())
	}
	m.setGauge(to)

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "phase changed", "from", from, "to", to, "elapsed", spent)
	}
	return nil
}

// Fail moves the run to PhaseFailed. It does nothing once the run has finished.
func (m *Manager) Fail(ctx context.Context, cause error) {
	if err := m.Transition(ctx, datacopy.PhaseFailed); err != nil {
		return
	}
	if m.config.Logger != nil {
		m.config.Logger.Error(ctx, "run failed", "error", cause)
	}
}

// Finished reports whether the run reached PhaseDone or PhaseFailed.
func (m *Manager) Finished() bool {
	p := m.Phase()
	return p == datacopy.PhaseDone || p == datacopy.PhaseFailed
}

// History returns every recorded transition in order.
func (m *Manager) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}

func (m *Manager) setGauge(phase datacopy.Phase) {
	if m.config.Collector == nil {
		return
	}
	names := make([]string, len(Phases))
	for i, p := range Phases {
		names[i] = string(p)
	}
	m.config.Collector.SetPhase(string(phase), names)
}
