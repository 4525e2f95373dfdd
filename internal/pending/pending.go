// Package pending tracks the one thing the system is waiting to receive
// from each user: the next qualifying image (or nothing). A user has at
// most one active expectation across all flows; setting a new one
// replaces whatever was pending.
package pending

import (
	"sync"
	"time"

	"github.com/pixelbot/pixelbot/internal/expiry"
	"github.com/pixelbot/pixelbot/internal/logger"
)

type Kind int

const (
	KindReversePrompt Kind = iota
	KindAnalysis
	KindReferenceEdit
	KindMergeFirst
	KindMergeSecond
)

func (k Kind) String() string {
	switch k {
	case KindReversePrompt:
		return "reverse-prompt"
	case KindAnalysis:
		return "analysis"
	case KindReferenceEdit:
		return "reference-edit"
	case KindMergeFirst:
		return "merge-first"
	case KindMergeSecond:
		return "merge-second"
	default:
		return "unknown"
	}
}

// Expectation is a recorded intent that the next image from this user
// belongs to a specific flow. Prompt carries the reference/merge prompt
// or the analysis question; FirstImage is held between the two merge
// phases.
type Expectation struct {
	Kind       Kind
	Prompt     string
	FirstImage []byte
	StartedAt  time.Time
}

// Timeouts are the per-flow waiting windows.
type Timeouts struct {
	ReferenceEdit time.Duration
	Merge         time.Duration
	ReversePrompt time.Duration
	Analysis      time.Duration
}

type TakeResult int

const (
	// TakeNone: nothing was pending for this user.
	TakeNone TakeResult = iota
	// TakeExpired: an expectation existed but its window had closed; it
	// has been discarded.
	TakeExpired
	// TakeOK: the expectation was live and has been removed.
	TakeOK
)

type Registry struct {
	mu       sync.Mutex
	now      expiry.Clock
	timeouts Timeouts
	pending  map[string]Expectation
}

func NewRegistry(timeouts Timeouts, now expiry.Clock) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:      now,
		timeouts: timeouts,
		pending:  make(map[string]Expectation),
	}
}

// Set records an expectation for the user, replacing any prior one of any
// kind.
func (r *Registry) Set(key string, kind Kind, prompt string, firstImage []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pending[key]; ok && prev.Kind != kind {
		logger.Info("pending expectation replaced",
			"user", key, "old", prev.Kind.String(), "new", kind.String())
	}
	r.pending[key] = Expectation{
		Kind:       kind,
		Prompt:     prompt,
		FirstImage: firstImage,
		StartedAt:  r.now(),
	}
}

// Take removes and returns the user's expectation, evaluating the flow
// timeout lazily at the moment the triggering event arrives.
func (r *Registry) Take(key string) (Expectation, TakeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[key]
	if !ok {
		return Expectation{}, TakeNone
	}
	delete(r.pending, key)

	if r.now().Sub(e.StartedAt) > r.timeout(e.Kind) {
		logger.Warn("pending expectation expired",
			"user", key, "kind", e.Kind.String())
		return e, TakeExpired
	}
	return e, TakeOK
}

// Active reports whether the user has a live (non-expired) expectation.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[key]
	return ok && r.now().Sub(e.StartedAt) <= r.timeout(e.Kind)
}

func (r *Registry) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}

// Sweep drops expectations whose windows closed without a triggering
// event. Runs from the periodic scheduler.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.pending {
		if r.now().Sub(e.StartedAt) > r.timeout(e.Kind) {
			delete(r.pending, key)
			removed++
		}
	}
	return removed
}

func (r *Registry) timeout(kind Kind) time.Duration {
	switch kind {
	case KindReferenceEdit:
		return r.timeouts.ReferenceEdit
	case KindMergeFirst, KindMergeSecond:
		return r.timeouts.Merge
	case KindReversePrompt:
		return r.timeouts.ReversePrompt
	case KindAnalysis:
		return r.timeouts.Analysis
	default:
		return r.timeouts.Analysis
	}
}
