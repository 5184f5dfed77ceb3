package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/succession"
)

// streamSpan separates the per-turn seeds of consecutive turns so that the
// entropy streams of one turn never overlap the next.
const streamSpan = 1000

// TurnReport summarises one completed turn.
type TurnReport struct {
	Turn      int         `json:"turn"`
	Year      int         `json:"year"` // Year the turn covered
	Actions   int         `json:"actions"`
	Failed    int         `json:"failed"` // Rejected actions and failed resolution steps
	Births    int         `json:"births"`
	Deaths    int         `json:"deaths"`
	Marriages int         `json:"marriages"`
	Crises    int         `json:"crises"`
	Events    []TurnEvent `json:"events"`
}

// Pipeline runs the turns of one dynasty.
type Pipeline struct {
	d   *Dynasty
	src entropy.Source // Overrides the per-turn streams when set

	running atomic.Bool
	mu      sync.Mutex // Held for the whole turn
	phase   phaseMachine

	inboxMu sync.Mutex
	pending []Action
}

// NewPipeline returns a pipeline for d. When src is nil every turn draws from
// streams derived from the dynasty seed and turn number, so a stored dynasty
// resumes exactly; a non-nil src is used for every draw instead.
func NewPipeline(d *Dynasty, src entropy.Source) *Pipeline {
	return &Pipeline{d: d, src: src}
}

// Dynasty returns the dynasty advanced by this pipeline.
func (p *Pipeline) Dynasty() *Dynasty {
	return p.d
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase.current
}

// Submit queues an action for the next Planning phase. It never waits for
// a turn in progress; an action submitted mid-turn is taken up by the turn
// after it.
func (p *Pipeline) Submit(a Action) error {
	if a == nil {
		return fmt.Errorf("%w: nil action", ErrUnknownAction)
	}
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	p.pending = append(p.pending, a)
	return nil
}

// Pending returns the number of queued actions.
func (p *Pipeline) Pending() int {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	return len(p.pending)
}

// drain takes every queued action in submission order.
func (p *Pipeline) drain() []Action {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	actions := p.pending
	p.pending = nil
	return actions
}

// RunTurn runs one full turn. The turn is computed against a copy of the
// tree; if any phase fails with an error the dynasty is left as it was and
// the queued actions are dropped. Failed actions and crises are events, not
// errors.
func (p *Pipeline) RunTurn() (TurnReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return TurnReport{}, ErrTurnInProgress
	}
	defer p.running.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { p.phase.current = PhaseIdle }()

	d := p.d
	t := p.newTurn()

	if err := p.phase.enter(PhasePlanning); err != nil {
		return TurnReport{}, err
	}
	actions := p.drain()
	t.report.Actions = len(actions)

	if err := p.phase.enter(PhaseExecution); err != nil {
		return TurnReport{}, err
	}
	for _, a := range actions {
		if err := a.apply(t); err != nil {
			t.fail(CategoryActionFailed, a.Kind(), err)
			slog.Debug("action failed", "house", d.House, "action", a.Kind(), "error", err)
		}
	}

	if err := p.phase.enter(PhaseResolution); err != nil {
		return TurnReport{}, err
	}
	t.resolve()

	if err := p.phase.enter(PhaseAdvancement); err != nil {
		return TurnReport{}, err
	}
	if err := t.tree.Validate(); err != nil {
		return TurnReport{}, fmt.Errorf("turn %d of %s: %w", d.Turn, d.House, err)
	}
	d.Tree = t.tree
	d.Laws = t.laws
	d.Interregnum = t.interregnum
	d.Log.Append(t.events...)
	t.report.Events = t.events
	t.report.Turn = d.Turn
	t.report.Year = d.Year
	d.Year += max(d.Theme.TurnLength, 1)
	d.Turn++

	if err := p.phase.enter(PhaseIdle); err != nil {
		return TurnReport{}, err
	}
	slog.Debug("turn resolved",
		"house", d.House,
		"turn", t.report.Turn,
		"year", t.report.Year,
		"events", len(t.events),
		"births", t.report.Births,
		"deaths", t.report.Deaths,
	)
	return t.report, nil
}

func (p *Pipeline) newTurn() *turn {
	d := p.d
	t := &turn{
		d:           d,
		tree:        d.Tree.Clone(),
		laws:        maps.Clone(d.Laws),
		interregnum: maps.Clone(d.Interregnum),
		nextSeq:     d.Log.LastSeq() + 1,
		life:        p.src,
		heirs:       p.src,
	}
	if t.laws == nil {
		t.laws = make(map[string]succession.Law)
	}
	if t.interregnum == nil {
		t.interregnum = make(map[string]int)
	}
	if t.life == nil {
		base := d.Seed + int64(d.Turn)*streamSpan
		t.life = entropy.Derive(base, entropy.StreamLifecycle)
		t.heirs = entropy.Derive(base, entropy.StreamSuccession)
	}
	return t
}

// turn is the working state of one turn in progress.
// The tree, laws and interregna are copies committed at advancement.
type turn struct {
	d           *Dynasty
	tree        *family.Tree
	laws        map[string]succession.Law
	interregnum map[string]int
	nextSeq     uint64
	life        entropy.Source
	heirs       entropy.Source
	events      []TurnEvent
	report      TurnReport
}

func (t *turn) lawFor(title string) succession.Law {
	if law, ok := t.laws[title]; ok {
		return law
	}
	return t.d.DefaultLaw
}

// emit buffers an event; nothing reaches the dynasty log before advancement.
func (t *turn) emit(cat Category, subjects []family.PersonID, narrative string, payload map[string]any) {
	seq := t.nextSeq
	t.nextSeq++
	t.events = append(t.events, TurnEvent{
		ID:        eventID(t.d.ID, seq),
		Seq:       seq,
		Turn:      t.d.Turn,
		Year:      t.d.Year,
		Category:  cat,
		Subjects:  subjects,
		Narrative: narrative,
		Payload:   payload,
	})
}

func (t *turn) fail(cat Category, step string, err error) {
	t.report.Failed++
	t.emit(cat, nil, fmt.Sprintf("%s failed: %v", step, err), map[string]any{"step": step})
	t.events[len(t.events)-1].Failure = failureOf(err)
}
