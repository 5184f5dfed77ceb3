package family

import (
	"fmt"
	"slices"
)

// Tree owns every person of one dynasty and the dynasty's titles.
// It is not safe for concurrent use; one dynasty is advanced by one goroutine.
type Tree struct {
	founder *PersonID
	persons map[PersonID]*Person
	nextID  PersonID

	titles     []*title // Seniority order: first created is most senior
	titleIndex map[string]*title
}

type title struct {
	name       string
	holder     *PersonID
	lastHolder *PersonID
	reigns     int
}

// NewTree creates an empty tree awaiting its founder.
func NewTree() *Tree {
	return &Tree{
		persons:    make(map[PersonID]*Person),
		nextID:     1,
		titleIndex: make(map[string]*title),
	}
}

// AddFounder installs p as the root of the tree.
func (t *Tree) AddFounder(p *Person) error {
	if t.founder != nil {
		return newError(CodeAlreadyFounded, fmt.Sprintf("dynasty already founded by %d", *t.founder),
			idMeta("founder_id", *t.founder))
	}
	if p == nil {
		return newError(CodeUnknownPerson, "founder is nil", nil)
	}
	if err := t.admit(p); err != nil {
		return err
	}
	p.Mother, p.Father, p.Spouse = nil, nil, nil
	p.Children, p.FormerSpouses, p.Titles = nil, nil, nil
	t.insert(p)
	t.founder = ptr(p.ID)
	return nil
}

// admit assigns an identifier to a new person and checks it can be indexed.
func (t *Tree) admit(p *Person) error {
	if p.ID == 0 {
		p.ID = t.nextID
	} else if _, exists := t.persons[p.ID]; exists {
		return newError(CodeDuplicatePerson, fmt.Sprintf("person %d already exists", p.ID),
			idMeta("person_id", p.ID))
	}
	if p.DeathYear != nil && *p.DeathYear < p.BirthYear {
		return newError(CodeDeathBeforeBirth,
			fmt.Sprintf("person %d dies in %d before birth in %d", p.ID, *p.DeathYear, p.BirthYear),
			idMeta("person_id", p.ID))
	}
	return nil
}

func (t *Tree) insert(p *Person) {
	t.persons[p.ID] = p
	if p.ID >= t.nextID {
		t.nextID = p.ID + 1
	}
}

// RecordBirth inserts child as the offspring of two living parents and
// appends it to both parents' children. It returns the child's identifier.
func (t *Tree) RecordBirth(parentID, otherParentID PersonID, child *Person) (PersonID, error) {
	a, ok := t.persons[parentID]
	if !ok || !a.Alive() {
		return 0, newError(CodeUnknownParent, fmt.Sprintf("parent %d is unknown or dead", parentID),
			idMeta("parent_id", parentID))
	}
	b, ok := t.persons[otherParentID]
	if !ok || !b.Alive() {
		return 0, newError(CodeUnknownParent, fmt.Sprintf("parent %d is unknown or dead", otherParentID),
			idMeta("parent_id", otherParentID))
	}
	if parentID == otherParentID || a.Sex == b.Sex {
		return 0, newError(CodeInvalidParents,
			fmt.Sprintf("persons %d and %d cannot be parents together", parentID, otherParentID),
			idMeta("parent_id", parentID, "other_parent_id", otherParentID))
	}
	if child == nil {
		return 0, newError(CodeUnknownPerson, "child is nil", nil)
	}
	if child.BirthYear < a.BirthYear || child.BirthYear < b.BirthYear {
		return 0, newError(CodeInvalidParents,
			fmt.Sprintf("child born in %d before a parent", child.BirthYear),
			idMeta("parent_id", parentID, "other_parent_id", otherParentID))
	}
	for _, parent := range []*Person{a, b} {
		if last, ok := t.lastChild(parent); ok && child.BirthYear < last.BirthYear {
			return 0, newError(CodeBirthOrder,
				fmt.Sprintf("child born in %d before sibling %d born in %d", child.BirthYear, last.ID, last.BirthYear),
				idMeta("parent_id", parent.ID, "sibling_id", last.ID))
		}
	}
	if err := t.admit(child); err != nil {
		return 0, err
	}

	mother, father := a, b
	if a.Sex == SexMale {
		mother, father = b, a
	}
	child.Mother = ptr(mother.ID)
	child.Father = ptr(father.ID)
	child.Spouse = nil
	child.Children, child.FormerSpouses, child.Titles = nil, nil, nil
	t.insert(child)

	mother.Children = append(mother.Children, child.ID)
	father.Children = append(father.Children, child.ID)
	return child.ID, nil
}

func (t *Tree) lastChild(p *Person) (*Person, bool) {
	if len(p.Children) == 0 {
		return nil, false
	}
	c, ok := t.persons[p.Children[len(p.Children)-1]]
	return c, ok
}

// RecordMarriage sets mutual spouse references between two living,
// unmarried people. Nothing is changed on failure.
func (t *Tree) RecordMarriage(personAID, personBID PersonID) error {
	if personAID == personBID {
		return newError(CodeSamePerson, fmt.Sprintf("person %d cannot marry themself", personAID),
			idMeta("person_id", personAID))
	}
	a, err := t.lookup(personAID)
	if err != nil {
		return err
	}
	b, err := t.lookup(personBID)
	if err != nil {
		return err
	}
	for _, p := range []*Person{a, b} {
		if !p.Alive() {
			return newError(CodeDeadParty, fmt.Sprintf("person %d is dead", p.ID), idMeta("person_id", p.ID))
		}
	}
	for _, p := range []*Person{a, b} {
		if p.Spouse != nil {
			return newError(CodeAlreadyMarried,
				fmt.Sprintf("person %d is already married to %d", p.ID, *p.Spouse),
				idMeta("person_id", p.ID, "spouse_id", *p.Spouse))
		}
	}
	a.Spouse = ptr(b.ID)
	b.Spouse = ptr(a.ID)
	return nil
}

// MarryIn indexes an outsider and marries them to a living, unmarried member
// in one step, keeping the outsider reachable from the founder.
func (t *Tree) MarryIn(memberID PersonID, outsider *Person) (PersonID, error) {
	member, err := t.lookup(memberID)
	if err != nil {
		return 0, err
	}
	if !member.Alive() {
		return 0, newError(CodeDeadParty, fmt.Sprintf("person %d is dead", memberID), idMeta("person_id", memberID))
	}
	if member.Spouse != nil {
		return 0, newError(CodeAlreadyMarried,
			fmt.Sprintf("person %d is already married to %d", memberID, *member.Spouse),
			idMeta("person_id", memberID, "spouse_id", *member.Spouse))
	}
	if outsider == nil {
		return 0, newError(CodeUnknownPerson, "outsider is nil", nil)
	}
	if !outsider.Alive() {
		return 0, newError(CodeDeadParty, "outsider is dead", nil)
	}
	if err := t.admit(outsider); err != nil {
		return 0, err
	}
	outsider.Mother, outsider.Father = nil, nil
	outsider.Children, outsider.FormerSpouses, outsider.Titles = nil, nil, nil
	outsider.Spouse = ptr(member.ID)
	t.insert(outsider)
	member.Spouse = ptr(outsider.ID)
	return outsider.ID, nil
}

// RecordDeath marks a person dead in year, widows their spouse and vacates
// every title they held. The vacated titles are returned most senior first;
// resolving them is the caller's job.
func (t *Tree) RecordDeath(personID PersonID, year int) ([]string, error) {
	p, err := t.lookup(personID)
	if err != nil {
		return nil, err
	}
	if !p.Alive() {
		return nil, newError(CodeAlreadyDead, fmt.Sprintf("person %d died in %d", personID, *p.DeathYear),
			idMeta("person_id", personID))
	}
	if year < p.BirthYear {
		return nil, newError(CodeDeathBeforeBirth,
			fmt.Sprintf("person %d cannot die in %d before birth in %d", personID, year, p.BirthYear),
			idMeta("person_id", personID))
	}

	p.DeathYear = ptr(year)
	if p.Spouse != nil {
		if spouse, ok := t.persons[*p.Spouse]; ok {
			spouse.Spouse = nil
			spouse.FormerSpouses = append(spouse.FormerSpouses, p.ID)
			p.FormerSpouses = append(p.FormerSpouses, spouse.ID)
		}
		p.Spouse = nil
	}

	var vacated []string
	for _, ti := range t.titles {
		if ti.holder != nil && *ti.holder == personID {
			ti.lastHolder = ti.holder
			ti.holder = nil
			vacated = append(vacated, ti.name)
		}
	}
	p.Titles = nil
	return vacated, nil
}

func (t *Tree) lookup(id PersonID) (*Person, error) {
	p, ok := t.persons[id]
	if !ok {
		return nil, newError(CodeUnknownPerson, fmt.Sprintf("person %d not found", id), idMeta("person_id", id))
	}
	return p, nil
}

// Person returns the person with the given identifier.
func (t *Tree) Person(id PersonID) (*Person, bool) {
	p, ok := t.persons[id]
	return p, ok
}

// Founder returns the dynasty's founder, if founded.
func (t *Tree) Founder() (*Person, bool) {
	if t.founder == nil {
		return nil, false
	}
	return t.persons[*t.founder], true
}

// Len returns the number of people ever indexed, living or dead.
func (t *Tree) Len() int {
	return len(t.persons)
}

// All returns every person in ascending identifier order.
func (t *Tree) All() []*Person {
	out := make([]*Person, 0, len(t.persons))
	for _, p := range t.persons {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Person) int { return cmpID(a.ID, b.ID) })
	return out
}

// Living returns every living person in ascending identifier order.
func (t *Tree) Living() []*Person {
	var out []*Person
	for _, p := range t.All() {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// IsBlood reports whether a person is the founder or born into the tree,
// as opposed to having married in.
func (t *Tree) IsBlood(id PersonID) bool {
	p, ok := t.persons[id]
	if !ok {
		return false
	}
	if t.founder != nil && *t.founder == id {
		return true
	}
	return p.Mother != nil || p.Father != nil
}

// Clone returns a deep copy. Callers that may need to discard a turn run it
// against a clone.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		founder:    clonePtr(t.founder),
		persons:    make(map[PersonID]*Person, len(t.persons)),
		nextID:     t.nextID,
		titleIndex: make(map[string]*title, len(t.titles)),
	}
	for id, p := range t.persons {
		c.persons[id] = p.clone()
	}
	for _, ti := range t.titles {
		ct := &title{
			name:       ti.name,
			holder:     clonePtr(ti.holder),
			lastHolder: clonePtr(ti.lastHolder),
			reigns:     ti.reigns,
		}
		c.titles = append(c.titles, ct)
		c.titleIndex[ct.name] = ct
	}
	return c
}

func cmpID(a, b PersonID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
