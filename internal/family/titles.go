package family

import (
	"fmt"
	"slices"
)

// TitleInfo is a read-only view of one title.
type TitleInfo struct {
	Name       string    `json:"name"`
	Rank       int       `json:"rank"` // 0 is most senior
	Holder     *PersonID `json:"holder,omitempty"`
	LastHolder *PersonID `json:"last_holder,omitempty"`
	Reigns     int       `json:"reigns"` // Holders so far, including the current one
}

// Vacant reports whether the title has no current holder.
func (ti TitleInfo) Vacant() bool {
	return ti.Holder == nil
}

// CreateTitle adds a title junior to every existing title.
func (t *Tree) CreateTitle(name string) error {
	if name == "" {
		return newError(CodeUnknownTitle, "title name is empty", nil)
	}
	if _, exists := t.titleIndex[name]; exists {
		return newError(CodeDuplicateTitle, fmt.Sprintf("title %q already exists", name), idMeta("title", name))
	}
	ti := &title{name: name}
	t.titles = append(t.titles, ti)
	t.titleIndex[name] = ti
	return nil
}

// TitleHolder returns the current holder of a title.
func (t *Tree) TitleHolder(titleName string) (*Person, bool) {
	ti, ok := t.titleIndex[titleName]
	if !ok || ti.holder == nil {
		return nil, false
	}
	p, ok := t.persons[*ti.holder]
	return p, ok
}

// SetTitleHolder grants a title to a living person. The previous holder, if
// any, loses it.
func (t *Tree) SetTitleHolder(titleName string, personID PersonID) error {
	ti, ok := t.titleIndex[titleName]
	if !ok {
		return newError(CodeUnknownTitle, fmt.Sprintf("title %q not found", titleName), idMeta("title", titleName))
	}
	p, err := t.lookup(personID)
	if err != nil {
		return err
	}
	if !p.Alive() {
		return newError(CodeDeadHeir, fmt.Sprintf("person %d is dead and cannot hold %q", personID, titleName),
			idMeta("person_id", personID, "title", titleName))
	}
	if ti.holder != nil {
		if *ti.holder == personID {
			return nil
		}
		if prev, ok := t.persons[*ti.holder]; ok {
			prev.Titles = slices.DeleteFunc(prev.Titles, func(n string) bool { return n == titleName })
		}
		ti.lastHolder = ti.holder
	}
	ti.holder = ptr(personID)
	ti.reigns++
	p.Titles = append(p.Titles, titleName)
	t.sortHeldTitles(p)
	return nil
}

// sortHeldTitles orders a person's titles by seniority.
func (t *Tree) sortHeldTitles(p *Person) {
	slices.SortFunc(p.Titles, func(a, b string) int {
		return t.rank(a) - t.rank(b)
	})
}

func (t *Tree) rank(name string) int {
	for i, ti := range t.titles {
		if ti.name == name {
			return i
		}
	}
	return len(t.titles)
}

// LastHolder returns the most recent holder of a title other than the
// current one; for a vacant title this is the deceased whose death vacated it.
func (t *Tree) LastHolder(titleName string) (*Person, bool) {
	ti, ok := t.titleIndex[titleName]
	if !ok || ti.lastHolder == nil {
		return nil, false
	}
	p, ok := t.persons[*ti.lastHolder]
	return p, ok
}

// Title returns a view of one title.
func (t *Tree) Title(titleName string) (TitleInfo, bool) {
	ti, ok := t.titleIndex[titleName]
	if !ok {
		return TitleInfo{}, false
	}
	return ti.info(t.rank(titleName)), true
}

// Titles returns every title, most senior first.
func (t *Tree) Titles() []TitleInfo {
	out := make([]TitleInfo, len(t.titles))
	for i, ti := range t.titles {
		out[i] = ti.info(i)
	}
	return out
}

// VacantTitles returns the names of titles without a holder, most senior first.
func (t *Tree) VacantTitles() []string {
	var out []string
	for _, ti := range t.titles {
		if ti.holder == nil {
			out = append(out, ti.name)
		}
	}
	return out
}

func (ti *title) info(rank int) TitleInfo {
	return TitleInfo{
		Name:       ti.name,
		Rank:       rank,
		Holder:     clonePtr(ti.holder),
		LastHolder: clonePtr(ti.lastHolder),
		Reigns:     ti.reigns,
	}
}
