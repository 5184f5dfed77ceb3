package theme

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/talgya/dynasty/internal/family"
)

// Known succession law and gender preference names.
var (
	LawNames    = []string{"primogeniture", "ultimogeniture", "gavelkind", "tanistry", "elective"}
	GenderNames = []string{"male", "female", "absolute"}
)

// ErrInvalidConfig matches every InvalidConfigError with errors.Is.
var ErrInvalidConfig = &InvalidConfigError{}

// InvalidConfigError lists every problem found in a theme. It is fatal at
// load time: no turn may start on an invalid theme.
type InvalidConfigError struct {
	Problems []string
}

func (e *InvalidConfigError) Error() string {
	return "invalid theme config: " + strings.Join(e.Problems, "; ")
}

// Is matches any InvalidConfigError.
func (e *InvalidConfigError) Is(target error) bool {
	_, ok := target.(*InvalidConfigError)
	return ok
}

// Validate checks that every required field is present and sane.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Name == "" {
		add("name is required")
	}
	if len(c.Names.Male) == 0 {
		add("names.male is required")
	}
	if len(c.Names.Female) == 0 {
		add("names.female is required")
	}
	if len(c.Names.Family) == 0 {
		add("names.family is required")
	}

	s := c.Succession
	if !slices.Contains(LawNames, s.Law) {
		add("succession.law %q is not one of %s", s.Law, strings.Join(LawNames, ", "))
	}
	if !slices.Contains(GenderNames, s.Gender) {
		add("succession.gender %q is not one of %s", s.Gender, strings.Join(GenderNames, ", "))
	}
	if s.MaxDegree < 1 {
		add("succession.max_degree must be at least 1")
	}
	if s.DivisionCount < 0 {
		add("succession.division_count must not be negative")
	}
	if s.MinAge < 0 || s.MinSkill < 0 || s.RandomFactor < 0 {
		add("succession.min_age, min_skill and random_factor must not be negative")
	}

	switch c.Inheritance.FamilyName {
	case "father", "mother":
	default:
		add("inheritance.family_name %q must be father or mother", c.Inheritance.FamilyName)
	}

	m := c.Mortality
	if m.BaselineAge <= 0 {
		add("mortality.baseline_age is required")
	}
	if !probability(m.BaseRate) || m.BaseRate == 0 {
		add("mortality.base_rate must be in (0, 1]")
	}
	if m.GrowthPerYear <= 0 {
		add("mortality.growth_per_year is required")
	}
	if !probability(m.ChildRate) {
		add("mortality.child_rate must be in [0, 1]")
	}
	if m.ChildAge < 0 {
		add("mortality.child_age must not be negative")
	}
	if !probability(m.MaxRate) || m.MaxRate < m.BaseRate {
		add("mortality.max_rate must be in [base_rate, 1]")
	}

	f := c.Fertility
	if !probability(f.BirthRate) || f.BirthRate == 0 {
		add("fertility.birth_rate must be in (0, 1]")
	}
	if !probability(f.MaleRatio) {
		add("fertility.male_ratio must be in [0, 1]")
	}
	if f.MotherMinAge <= 0 || f.MotherMaxAge < f.MotherMinAge {
		add("fertility.mother_min_age and mother_max_age must form a range")
	}
	if f.FatherMinAge <= 0 || f.FatherMaxAge < f.FatherMinAge {
		add("fertility.father_min_age and father_max_age must form a range")
	}

	mar := c.Marriage
	if mar.MinAge <= 0 || mar.MaxAge < mar.MinAge {
		add("marriage.min_age and max_age must form a range")
	}
	if !probability(mar.Rate) || !probability(mar.OutsiderRate) {
		add("marriage.rate and outsider_rate must be in [0, 1]")
	}
	if mar.KinshipDegree < 0 {
		add("marriage.kinship_degree must not be negative")
	}

	if len(c.Traits) == 0 {
		add("traits is required")
	}
	names := make([]string, 0, len(c.Traits))
	for name := range c.Traits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := family.ParseTrait(name); err != nil {
			add("traits: %v", err)
			continue
		}
		r := c.Traits[name]
		if !probability(r.InheritOne) || !probability(r.InheritBoth) || !probability(r.Spontaneous) {
			add("traits.%s inheritance chances must be in [0, 1]", name)
		}
		if r.Mortality < 0 || r.Fertility < 0 {
			add("traits.%s modifiers must not be negative", name)
		}
	}

	if c.Hardship.Amplitude < 0 || c.Hardship.Amplitude >= 1 {
		add("hardship.amplitude must be in [0, 1)")
	}
	if c.Hardship.Amplitude > 0 && c.Hardship.Frequency <= 0 {
		add("hardship.frequency is required when amplitude is set")
	}
	if c.TurnLength <= 0 {
		add("turn_length is required")
	}
	if len(c.Titles) == 0 {
		add("titles is required")
	}
	for i, t := range c.Titles {
		if t == "" || slices.Contains(c.Titles[:i], t) {
			add("titles[%d] must be a unique non-empty name", i)
		}
	}

	if len(problems) > 0 {
		return &InvalidConfigError{Problems: problems}
	}
	return nil
}

func probability(p float64) bool {
	return p >= 0 && p <= 1
}
