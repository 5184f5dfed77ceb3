package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/succession"
)

// Runner advances many dynasties side by side, one goroutine per dynasty.
// Dynasties share no state, so their histories do not depend on scheduling.
type Runner struct {
	Registry *Registry
	Turns    int // Turns per dynasty; 0 runs until the context ends

	// OnTurn, if set, is called on the dynasty's goroutine after every turn.
	// An error stops every dynasty.
	OnTurn func(d *Dynasty, report TurnReport) error
}

// Run advances every pipeline. Cancellation is honoured between turns only;
// a turn in progress always completes.
func (r *Runner) Run(ctx context.Context, pipelines ...*Pipeline) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		if r.Registry != nil {
			r.Registry.Attach(p)
			r.Registry.Publish(p.Dynasty())
		}
		g.Go(func() error {
			for i := 0; r.Turns <= 0 || i < r.Turns; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				report, err := p.RunTurn()
				if err != nil {
					return fmt.Errorf("house %s: %w", p.Dynasty().House, err)
				}
				if r.Registry != nil {
					r.Registry.Publish(p.Dynasty())
				}
				if r.OnTurn != nil {
					if err := r.OnTurn(p.Dynasty(), report); err != nil {
						return fmt.Errorf("house %s: %w", p.Dynasty().House, err)
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// View is an immutable published copy of a dynasty, safe to read from any
// goroutine.
type View struct {
	ID          uuid.UUID
	House       string
	Theme       string
	Year        int
	Turn        int
	DefaultLaw  succession.Law
	Laws        map[string]succession.Law
	Interregnum map[string]int
	Tree        *family.Tree // Read only
	Log         *EventLog    // Shared with the dynasty; may run ahead of the view
	LastSeq     uint64       // Newest event belonging to the view
}

// Events returns the view's events with a sequence number above since.
func (v *View) Events(since uint64) []TurnEvent {
	events := v.Log.Since(since)
	for i, e := range events {
		if e.Seq > v.LastSeq {
			return events[:i]
		}
	}
	return events
}

// Status is the JSON summary of a view.
type Status struct {
	ID          uuid.UUID        `json:"id"`
	House       string           `json:"house"`
	Theme       string           `json:"theme"`
	Year        int              `json:"year"`
	Turn        int              `json:"turn"`
	Living      int              `json:"living"`
	Total       int              `json:"total"`
	Events      uint64           `json:"events"`
	DefaultLaw  string           `json:"default_law"`
	Titles      []TitleStatus    `json:"titles"`
	Interregnum map[string]int   `json:"interregnum,omitempty"`
	Founder     *family.PersonID `json:"founder,omitempty"`
}

// TitleStatus is one title with its governing law and holder's name.
type TitleStatus struct {
	family.TitleInfo
	Law        string `json:"law"`
	HolderName string `json:"holder_name,omitempty"`
}

// Status summarises the view.
func (v *View) Status() Status {
	st := Status{
		ID:          v.ID,
		House:       v.House,
		Theme:       v.Theme,
		Year:        v.Year,
		Turn:        v.Turn,
		Living:      len(v.Tree.Living()),
		Total:       v.Tree.Len(),
		Events:      v.LastSeq,
		DefaultLaw:  v.DefaultLaw.String(),
		Interregnum: v.Interregnum,
	}
	if f, ok := v.Tree.Founder(); ok {
		st.Founder = &f.ID
	}
	st.Titles = v.Titles()
	return st
}

// Titles returns every title, most senior first.
func (v *View) Titles() []TitleStatus {
	var out []TitleStatus
	for _, ti := range v.Tree.Titles() {
		ts := TitleStatus{TitleInfo: ti, Law: v.DefaultLaw.String()}
		if law, ok := v.Laws[ti.Name]; ok {
			ts.Law = law.String()
		}
		if h, ok := v.Tree.TitleHolder(ti.Name); ok {
			ts.HolderName = h.Name()
		}
		out = append(out, ts)
	}
	return out
}

// ErrUnknownDynasty is returned when an action names a dynasty no pipeline
// advances.
var ErrUnknownDynasty = errors.New("unknown dynasty")

// Registry holds the latest published view of every dynasty and the
// pipeline that accepts its actions.
type Registry struct {
	mu        sync.RWMutex
	views     map[uuid.UUID]*View
	pipelines map[uuid.UUID]*Pipeline
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		views:     make(map[uuid.UUID]*View),
		pipelines: make(map[uuid.UUID]*Pipeline),
	}
}

// Attach routes the actions of p's dynasty to p.
func (r *Registry) Attach(p *Pipeline) {
	r.mu.Lock()
	r.pipelines[p.Dynasty().ID] = p
	r.mu.Unlock()
}

// Submit queues an action for the next turn of a dynasty.
func (r *Registry) Submit(id uuid.UUID, a Action) error {
	r.mu.RLock()
	p, ok := r.pipelines[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDynasty, id)
	}
	return p.Submit(a)
}

// Publish replaces the view of d. It must be called from the goroutine that
// advances d.
func (r *Registry) Publish(d *Dynasty) {
	v := &View{
		ID:          d.ID,
		House:       d.House,
		Theme:       d.Theme.Name,
		Year:        d.Year,
		Turn:        d.Turn,
		DefaultLaw:  d.DefaultLaw,
		Laws:        maps.Clone(d.Laws),
		Interregnum: maps.Clone(d.Interregnum),
		Tree:        d.Tree.Clone(),
		Log:         d.Log,
		LastSeq:     d.Log.LastSeq(),
	}
	r.mu.Lock()
	r.views[d.ID] = v
	r.mu.Unlock()
}

// Get returns the view of one dynasty.
func (r *Registry) Get(id uuid.UUID) (*View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	return v, ok
}

// List returns every view ordered by house name.
func (r *Registry) List() []*View {
	r.mu.RLock()
	out := slices.Collect(maps.Values(r.views))
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *View) int {
		return strings.Compare(a.House, b.House)
	})
	return out
}
