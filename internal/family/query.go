package family

import (
	"fmt"
	"iter"
	"slices"
)

// Descendants yields every descendant of a person with their generational
// distance (children are 1). Order is breadth-first by generation, then by
// birth order within each parent's children. A descendant reachable through
// two lines is yielded once, at its nearest generation.
func (t *Tree) Descendants(personID PersonID) iter.Seq2[*Person, int] {
	return func(yield func(*Person, int) bool) {
		if _, ok := t.persons[personID]; !ok {
			return
		}
		seen := map[PersonID]bool{personID: true}
		frontier := []PersonID{personID}
		for depth := 1; len(frontier) > 0; depth++ {
			var next []PersonID
			for _, pid := range frontier {
				for _, cid := range t.persons[pid].Children {
					if seen[cid] {
						continue
					}
					seen[cid] = true
					next = append(next, cid)
				}
			}
			for _, cid := range next {
				if !yield(t.persons[cid], depth) {
					return
				}
			}
			frontier = next
		}
	}
}

// LivingDescendants yields the living descendants of a person in the same
// order as Descendants. The sequence is lazy and may be ranged over again.
func (t *Tree) LivingDescendants(personID PersonID) iter.Seq[*Person] {
	return func(yield func(*Person) bool) {
		for p := range t.Descendants(personID) {
			if p.Alive() && !yield(p) {
				return
			}
		}
	}
}

// Ancestors returns every ancestor within depth generations mapped to its
// nearest generational distance (parents are 1). depth <= 0 means unbounded.
func (t *Tree) Ancestors(personID PersonID, depth int) map[PersonID]int {
	out := make(map[PersonID]int)
	frontier := []PersonID{personID}
	for gen := 1; len(frontier) > 0 && (depth <= 0 || gen <= depth); gen++ {
		var next []PersonID
		for _, id := range frontier {
			p, ok := t.persons[id]
			if !ok {
				continue
			}
			for _, parent := range p.Parents() {
				if _, seen := out[parent]; seen {
					continue
				}
				out[parent] = gen
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return out
}

// AncestorsAt returns the ancestors exactly gen generations up, father's
// side first, in discovery order.
func (t *Tree) AncestorsAt(personID PersonID, gen int) []PersonID {
	frontier := []PersonID{personID}
	seen := map[PersonID]bool{personID: true}
	for g := 0; g < gen; g++ {
		var next []PersonID
		for _, id := range frontier {
			p, ok := t.persons[id]
			if !ok {
				continue
			}
			for _, parent := range p.Parents() {
				if seen[parent] {
					continue
				}
				seen[parent] = true
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return frontier
}

// Parents returns the person's known parents, father first.
func (p *Person) Parents() []PersonID {
	var out []PersonID
	if p.Father != nil {
		out = append(out, *p.Father)
	}
	if p.Mother != nil {
		out = append(out, *p.Mother)
	}
	return out
}

// Related reports whether two people are the same, one is an ancestor of the
// other, or they share an ancestor, looking at most depth generations up.
// A depth of zero looks at no ancestors at all.
func (t *Tree) Related(a, b PersonID, depth int) bool {
	if a == b {
		return true
	}
	if depth <= 0 {
		return false
	}
	ancA := t.Ancestors(a, depth)
	ancB := t.Ancestors(b, depth)
	if _, ok := ancA[b]; ok {
		return true
	}
	if _, ok := ancB[a]; ok {
		return true
	}
	for id := range ancA {
		if _, ok := ancB[id]; ok {
			return true
		}
	}
	return false
}

// Reachable returns every person reachable from the founder along parent,
// child, spouse and former-spouse edges.
func (t *Tree) Reachable() map[PersonID]bool {
	seen := make(map[PersonID]bool, len(t.persons))
	if t.founder == nil {
		return seen
	}
	queue := []PersonID{*t.founder}
	seen[*t.founder] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		p, ok := t.persons[id]
		if !ok {
			continue
		}
		edges := append(p.Parents(), p.Children...)
		edges = append(edges, p.FormerSpouses...)
		if p.Spouse != nil {
			edges = append(edges, *p.Spouse)
		}
		for _, next := range edges {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// Validate checks every structural invariant of the tree and returns the
// first violation found.
func (t *Tree) Validate() error {
	if len(t.persons) > 0 && t.founder == nil {
		return invariant("tree has people but no founder")
	}

	reachable := t.Reachable()
	for id := range reachable {
		if _, ok := t.persons[id]; !ok {
			return invariant(fmt.Sprintf("person %d is referenced but not indexed", id))
		}
	}
	for _, p := range t.All() {
		if !reachable[p.ID] {
			return invariant(fmt.Sprintf("person %d is not reachable from the founder", p.ID))
		}
		if p.DeathYear != nil && *p.DeathYear < p.BirthYear {
			return invariant(fmt.Sprintf("person %d dies before birth", p.ID))
		}
		for _, cid := range p.Children {
			c, ok := t.persons[cid]
			if !ok {
				return invariant(fmt.Sprintf("child %d of %d not indexed", cid, p.ID))
			}
			if !isParent(c, p.ID) {
				return invariant(fmt.Sprintf("child %d does not list %d as parent", cid, p.ID))
			}
		}
		for _, parent := range p.Parents() {
			pp, ok := t.persons[parent]
			if !ok {
				return invariant(fmt.Sprintf("parent %d of %d not indexed", parent, p.ID))
			}
			if !slices.Contains(pp.Children, p.ID) {
				return invariant(fmt.Sprintf("parent %d does not list child %d", parent, p.ID))
			}
		}
		if p.Spouse != nil {
			s, ok := t.persons[*p.Spouse]
			if !ok || s.Spouse == nil || *s.Spouse != p.ID {
				return invariant(fmt.Sprintf("spouse reference of %d is not mutual", p.ID))
			}
			if !p.Alive() || !s.Alive() {
				return invariant(fmt.Sprintf("person %d is married to the dead", p.ID))
			}
		}
	}
	if id, found := t.ancestryCycle(); found {
		return invariant(fmt.Sprintf("person %d is their own ancestor", id))
	}

	for _, ti := range t.titles {
		if ti.holder == nil {
			continue
		}
		h, ok := t.persons[*ti.holder]
		if !ok || !h.Alive() {
			return invariant(fmt.Sprintf("title %q is held by a dead or unknown person", ti.name))
		}
		if !slices.Contains(h.Titles, ti.name) {
			return invariant(fmt.Sprintf("holder %d does not list title %q", h.ID, ti.name))
		}
	}
	return nil
}

// ancestryCycle finds someone who is their own ancestor in one depth-first
// walk over parent edges.
func (t *Tree) ancestryCycle() (PersonID, bool) {
	const (
		unvisited = iota
		onPath
		cleared
	)
	state := make(map[PersonID]int, len(t.persons))
	var visit func(id PersonID) (PersonID, bool)
	visit = func(id PersonID) (PersonID, bool) {
		switch state[id] {
		case onPath:
			return id, true
		case cleared:
			return 0, false
		}
		state[id] = onPath
		if p, ok := t.persons[id]; ok {
			for _, parent := range p.Parents() {
				if cycle, found := visit(parent); found {
					return cycle, true
				}
			}
		}
		state[id] = cleared
		return 0, false
	}
	for _, p := range t.All() {
		if state[p.ID] == unvisited {
			if id, found := visit(p.ID); found {
				return id, true
			}
		}
	}
	return 0, false
}

func invariant(msg string) error {
	return newError(CodeInvariant, msg, nil)
}

func isParent(child *Person, parent PersonID) bool {
	return (child.Mother != nil && *child.Mother == parent) || (child.Father != nil && *child.Father == parent)
}
