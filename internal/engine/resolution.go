package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/succession"
)

// resolve runs the resolution phase in its fixed order.
func (t *turn) resolve() {
	t.retryVacancies()
	t.resolveDeaths()
	t.resolveBirths()
	t.resolveMarriages()
}

// retryVacancies gives every title left vacant by an earlier crisis another
// chance, most senior first.
func (t *turn) retryVacancies() {
	for _, title := range t.tree.VacantTitles() {
		t.succeed(title)
	}
}

// resolveDeaths checks every living person in ascending identifier order.
// Each death is followed at once by succession to the titles it vacated, so
// a later death in the same turn sees the new holders.
func (t *turn) resolveDeaths() {
	year := t.d.Year
	for _, p := range t.tree.Living() {
		if !t.d.Rules.CheckDeath(p, year, t.life) {
			continue
		}
		age := p.Age(year)
		vacated, err := t.tree.RecordDeath(p.ID, year)
		if err != nil {
			t.fail(CategoryResolutionFailed, "death", err)
			continue
		}
		t.report.Deaths++

		narrative := fmt.Sprintf("%s dies at the age of %d", p.Name(), age)
		if t.d.Rules.Hardship.Severe(year) {
			narrative += " in a year of hardship"
		}
		payload := map[string]any{"age": age}
		if len(vacated) > 0 {
			payload["titles"] = vacated
		}
		t.emit(CategoryDeath, []family.PersonID{p.ID}, narrative, payload)

		for _, title := range vacated {
			t.succeed(title)
		}
	}
}

// succeed resolves one vacant title and installs the heir. A crisis is
// announced once, when it begins; later retries that still find nobody are
// silent.
func (t *turn) succeed(title string) {
	law := t.lawFor(title)
	out, err := succession.Resolve(t.tree, title, law, t.d.Year, t.heirs)
	if err != nil {
		t.fail(CategoryResolutionFailed, "succession", err)
		return
	}

	if out.Crisis {
		if _, ongoing := t.interregnum[title]; ongoing {
			slog.Debug("title still vacant", "house", t.d.House, "title", title)
			return
		}
		t.interregnum[title] = t.d.Year
		t.report.Crises++
		var subjects []family.PersonID
		if out.Predecessor != nil {
			subjects = append(subjects, *out.Predecessor)
		}
		t.emit(CategoryCrisis, subjects,
			fmt.Sprintf("The %s lies vacant: %s", title, out.Reason),
			map[string]any{"title": title, "law": law.String(), "reason": out.Reason})
		return
	}

	if err := t.tree.SetTitleHolder(title, *out.Heir); err != nil {
		t.fail(CategoryResolutionFailed, "succession", err)
		return
	}
	heir, _ := t.tree.Person(*out.Heir)
	info, _ := t.tree.Title(title)

	subjects := []family.PersonID{heir.ID}
	narrative := fmt.Sprintf("%s becomes the %s holder of the %s", heir.Name(), humanize.Ordinal(info.Reigns), title)
	payload := map[string]any{
		"title":     title,
		"law":       law.String(),
		"heir":      heir.ID,
		"claimants": len(out.Claimants),
	}
	if out.Predecessor != nil {
		if pred, ok := t.tree.Person(*out.Predecessor); ok {
			subjects = append(subjects, pred.ID)
			narrative += ", succeeding " + pred.Name()
			payload["predecessor"] = pred.ID
		}
	}
	if len(out.CoHeirs) > 1 {
		var names []string
		for _, id := range out.CoHeirs[1:] {
			p, _ := t.tree.Person(id)
			names = append(names, p.Name())
		}
		narrative += "; the inheritance is divided with " + strings.Join(names, ", ")
		payload["co_heirs"] = out.CoHeirs
	}
	if began, ok := t.interregnum[title]; ok {
		narrative += fmt.Sprintf(" after %d years of interregnum", t.d.Year-began)
		delete(t.interregnum, title)
	}
	t.emit(CategorySuccession, subjects, narrative, payload)
}

// resolveBirths gives every married couple a chance of a child, visiting
// mothers in ascending identifier order.
func (t *turn) resolveBirths() {
	year := t.d.Year
	for _, mother := range t.tree.Living() {
		if mother.Sex != family.SexFemale || mother.Spouse == nil {
			continue
		}
		fatherID := *mother.Spouse
		child, born, err := t.d.Rules.CheckBirth(t.tree, mother.ID, fatherID, year, t.life)
		if err != nil {
			t.fail(CategoryResolutionFailed, "birth", err)
			continue
		}
		if !born {
			continue
		}
		id, err := t.tree.RecordBirth(mother.ID, fatherID, child)
		if err != nil {
			t.fail(CategoryResolutionFailed, "birth", err)
			continue
		}
		t.report.Births++
		father, _ := t.tree.Person(fatherID)
		t.emit(CategoryBirth, []family.PersonID{id, mother.ID, fatherID},
			fmt.Sprintf("%s is born to %s and %s", child.Name(), mother.Name(), father.Name()),
			map[string]any{"sex": child.Sex.String(), "traits": child.Traits.Names()})
	}
}

// resolveMarriages pairs singles within the dynasty first, then lets blood
// members still single marry outsiders.
func (t *turn) resolveMarriages() {
	year := t.d.Year
	var pool []family.PersonID
	for _, p := range t.tree.Living() {
		if !p.Married() {
			pool = append(pool, p.ID)
		}
	}
	for _, m := range t.d.Rules.CheckMarriage(t.tree, pool, year, t.life) {
		if err := t.tree.RecordMarriage(m.A, m.B); err != nil {
			t.fail(CategoryResolutionFailed, "marriage", err)
			continue
		}
		t.marriageEvent(m.A, m.B, "matched")
	}

	for _, p := range t.tree.Living() {
		if !t.tree.IsBlood(p.ID) || !t.d.Rules.SeeksOutsider(p, year, t.life) {
			continue
		}
		suitor := t.d.Rules.Suitor(p, year, t.life)
		id, err := t.tree.MarryIn(p.ID, suitor)
		if err != nil {
			t.fail(CategoryResolutionFailed, "marriage", err)
			continue
		}
		t.marriageEvent(p.ID, id, "outsider")
	}
}

func (t *turn) marriageEvent(a, b family.PersonID, how string) {
	pa, _ := t.tree.Person(a)
	pb, _ := t.tree.Person(b)
	t.report.Marriages++
	t.emit(CategoryMarriage, []family.PersonID{a, b},
		fmt.Sprintf("%s marries %s", pa.Name(), pb.Name()),
		map[string]any{"match": how})
}
