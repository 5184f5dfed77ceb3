package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/succession"
)

// Action is a player or script command queued during planning and applied,
// in submission order, during execution. A failed action is recorded in the
// event log and never stops the turn.
type Action interface {
	// Kind names the action for logs and failure events.
	Kind() string
	apply(t *turn) error
}

// ErrUnknownAction is returned for an action kind the pipeline does not know.
var ErrUnknownAction = errors.New("unknown action")

// DecodeAction reads an action from its JSON form, an object whose "kind"
// names the action and whose other fields are the action's own.
func DecodeAction(data []byte) (Action, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	switch head.Kind {
	case MarriageProposal{}.Kind():
		return decodeAs[MarriageProposal](data)
	case TitleAssignment{}.Kind():
		return decodeAs[TitleAssignment](data)
	case LawChange{}.Kind():
		return decodeAs[LawChange](data)
	case TitleCreation{}.Kind():
		return decodeAs[TitleCreation](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Kind)
}

func decodeAs[A Action](data []byte) (Action, error) {
	var a A
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.Kind(), err)
	}
	return a, nil
}

// MarriageProposal weds two living, unmarried members.
type MarriageProposal struct {
	A family.PersonID `json:"a"`
	B family.PersonID `json:"b"`
}

func (MarriageProposal) Kind() string { return "marriage_proposal" }

func (a MarriageProposal) apply(t *turn) error {
	if err := t.tree.RecordMarriage(a.A, a.B); err != nil {
		return err
	}
	t.marriageEvent(a.A, a.B, "arranged")
	return nil
}

// TitleAssignment grants a title to a living person, displacing any holder.
type TitleAssignment struct {
	Title  string          `json:"title"`
	Person family.PersonID `json:"person"`
}

func (TitleAssignment) Kind() string { return "title_assignment" }

func (a TitleAssignment) apply(t *turn) error {
	prev, hadHolder := t.tree.TitleHolder(a.Title)
	if err := t.tree.SetTitleHolder(a.Title, a.Person); err != nil {
		return err
	}
	p, _ := t.tree.Person(a.Person)
	subjects := []family.PersonID{p.ID}
	narrative := fmt.Sprintf("%s is granted the %s", p.Name(), a.Title)
	if hadHolder && prev.ID != p.ID {
		subjects = append(subjects, prev.ID)
		narrative += fmt.Sprintf(", taken from %s", prev.Name())
	}
	delete(t.interregnum, a.Title)
	t.emit(CategoryTitle, subjects, narrative, map[string]any{
		"title":  a.Title,
		"holder": p.ID,
	})
	return nil
}

// LawChange replaces the succession law of one title from the next
// resolution on.
type LawChange struct {
	Title string         `json:"title"`
	Law   succession.Law `json:"law"`
}

func (LawChange) Kind() string { return "law_change" }

func (a LawChange) apply(t *turn) error {
	if _, ok := t.tree.Title(a.Title); !ok {
		return fmt.Errorf("title %q: %w", a.Title, family.ErrUnknownTitle)
	}
	if err := a.Law.Validate(); err != nil {
		return err
	}
	old := t.lawFor(a.Title)
	t.laws[a.Title] = a.Law
	t.emit(CategoryLaw, nil, fmt.Sprintf("The %s now passes by %s", a.Title, a.Law), map[string]any{
		"title": a.Title,
		"from":  old.String(),
		"to":    a.Law.String(),
	})
	return nil
}

// TitleCreation adds a title junior to every existing one, optionally
// granting it at once. Nothing is created if the holder cannot take it.
type TitleCreation struct {
	Title  string           `json:"title"`
	Holder *family.PersonID `json:"holder,omitempty"`
}

func (TitleCreation) Kind() string { return "title_creation" }

func (a TitleCreation) apply(t *turn) error {
	var holder *family.Person
	if a.Holder != nil {
		p, ok := t.tree.Person(*a.Holder)
		if !ok {
			return fmt.Errorf("holder %d: %w", *a.Holder, family.ErrUnknownPerson)
		}
		if !p.Alive() {
			return fmt.Errorf("holder %d: %w", *a.Holder, family.ErrDeadHeir)
		}
		holder = p
	}
	if err := t.tree.CreateTitle(a.Title); err != nil {
		return err
	}

	payload := map[string]any{"title": a.Title}
	narrative := fmt.Sprintf("The %s is created", a.Title)
	var subjects []family.PersonID
	if holder != nil {
		if err := t.tree.SetTitleHolder(a.Title, holder.ID); err != nil {
			return err
		}
		subjects = []family.PersonID{holder.ID}
		narrative += " for " + holder.Name()
		payload["holder"] = holder.ID
	}
	t.emit(CategoryTitle, subjects, narrative, payload)
	return nil
}
