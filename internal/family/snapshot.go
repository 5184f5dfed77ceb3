package family

import (
	"fmt"
	"slices"
)

// PersonRecord is the acyclic, identifier-keyed form of a person.
type PersonRecord struct {
	ID            PersonID          `json:"id" db:"id"`
	GivenName     string            `json:"given_name" db:"given_name"`
	FamilyName    string            `json:"family_name" db:"family_name"`
	Sex           string            `json:"sex" db:"sex"`
	BirthYear     int               `json:"birth_year" db:"birth_year"`
	DeathYear     *int              `json:"death_year,omitempty" db:"death_year"`
	Traits        []string          `json:"traits"`
	Extra         map[string]string `json:"extra,omitempty"`
	Skills        Skills            `json:"skills"`
	Mother        *PersonID         `json:"mother,omitempty" db:"mother_id"`
	Father        *PersonID         `json:"father,omitempty" db:"father_id"`
	Spouse        *PersonID         `json:"spouse,omitempty" db:"spouse_id"`
	FormerSpouses []PersonID        `json:"former_spouses,omitempty"`
	Children      []PersonID        `json:"children,omitempty"`
	Titles        []string          `json:"titles,omitempty"`
}

// TitleRecord is the serialisable form of a title.
type TitleRecord struct {
	Name       string    `json:"name" db:"name"`
	Rank       int       `json:"rank" db:"rank"`
	Holder     *PersonID `json:"holder,omitempty" db:"holder_id"`
	LastHolder *PersonID `json:"last_holder,omitempty" db:"last_holder_id"`
	Reigns     int       `json:"reigns" db:"reigns"`
}

// Snapshot is a complete, acyclic copy of a tree.
type Snapshot struct {
	Founder PersonID       `json:"founder"`
	NextID  PersonID       `json:"next_id"`
	Persons []PersonRecord `json:"persons"` // Ascending ID
	Titles  []TitleRecord  `json:"titles"`  // Seniority order
}

// Record converts a person to its serialisable form.
func (p *Person) Record() PersonRecord {
	c := p.clone()
	return PersonRecord{
		ID:            c.ID,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		Sex:           c.Sex.String(),
		BirthYear:     c.BirthYear,
		DeathYear:     c.DeathYear,
		Traits:        c.Traits.Names(),
		Extra:         c.Extra,
		Skills:        c.Skills,
		Mother:        c.Mother,
		Father:        c.Father,
		Spouse:        c.Spouse,
		FormerSpouses: c.FormerSpouses,
		Children:      c.Children,
		Titles:        c.Titles,
	}
}

// Person converts a record back to a person.
func (r PersonRecord) Person() (*Person, error) {
	sex, err := ParseSex(r.Sex)
	if err != nil {
		return nil, fmt.Errorf("person %d: %w", r.ID, err)
	}
	traits, err := ParseTraitSet(r.Traits)
	if err != nil {
		return nil, fmt.Errorf("person %d: %w", r.ID, err)
	}
	p := &Person{
		ID:            r.ID,
		GivenName:     r.GivenName,
		FamilyName:    r.FamilyName,
		Sex:           sex,
		BirthYear:     r.BirthYear,
		DeathYear:     r.DeathYear,
		Traits:        traits,
		Extra:         r.Extra,
		Skills:        r.Skills,
		Mother:        r.Mother,
		Father:        r.Father,
		Spouse:        r.Spouse,
		FormerSpouses: r.FormerSpouses,
		Children:      r.Children,
		Titles:        r.Titles,
	}
	return p.clone(), nil
}

// Snapshot returns an acyclic copy of the tree suitable for persistence and
// read views.
func (t *Tree) Snapshot() Snapshot {
	snap := Snapshot{NextID: t.nextID}
	if t.founder != nil {
		snap.Founder = *t.founder
	}
	for _, p := range t.All() {
		snap.Persons = append(snap.Persons, p.Record())
	}
	for i, ti := range t.titles {
		info := ti.info(i)
		snap.Titles = append(snap.Titles, TitleRecord{
			Name:       info.Name,
			Rank:       info.Rank,
			Holder:     info.Holder,
			LastHolder: info.LastHolder,
			Reigns:     info.Reigns,
		})
	}
	return snap
}

// Restore rebuilds a tree from a snapshot and validates its invariants.
func Restore(snap Snapshot) (*Tree, error) {
	t := NewTree()
	for _, r := range snap.Persons {
		p, err := r.Person()
		if err != nil {
			return nil, err
		}
		if _, exists := t.persons[p.ID]; exists || p.ID == 0 {
			return nil, newError(CodeDuplicatePerson, fmt.Sprintf("person %d duplicated in snapshot", p.ID),
				idMeta("person_id", p.ID))
		}
		t.insert(p)
	}
	if len(snap.Persons) > 0 {
		if _, ok := t.persons[snap.Founder]; !ok {
			return nil, newError(CodeUnknownPerson, fmt.Sprintf("founder %d not in snapshot", snap.Founder),
				idMeta("person_id", snap.Founder))
		}
		t.founder = ptr(snap.Founder)
	}
	if snap.NextID > t.nextID {
		t.nextID = snap.NextID
	}

	titles := slices.Clone(snap.Titles)
	slices.SortStableFunc(titles, func(a, b TitleRecord) int { return a.Rank - b.Rank })
	for _, r := range titles {
		if err := t.CreateTitle(r.Name); err != nil {
			return nil, err
		}
		ti := t.titleIndex[r.Name]
		ti.holder = clonePtr(r.Holder)
		ti.lastHolder = clonePtr(r.LastHolder)
		ti.reigns = r.Reigns
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("restore tree: %w", err)
	}
	return t, nil
}
