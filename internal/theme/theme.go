// Package theme loads the cultural parameters of a dynasty: naming lists,
// the default succession law, and the demographic curves that drive births,
// marriages and deaths.
package theme

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed themes/feudal.yaml
var defaultTheme []byte

// Config is one cultural theme.
type Config struct {
	Name        string               `yaml:"name"`
	Names       Names                `yaml:"names"`
	Succession  Succession           `yaml:"succession"`
	Inheritance Inheritance          `yaml:"inheritance"`
	Mortality   Mortality            `yaml:"mortality"`
	Fertility   Fertility            `yaml:"fertility"`
	Marriage    Marriage             `yaml:"marriage"`
	Traits      map[string]TraitRule `yaml:"traits"`
	Hardship    Hardship             `yaml:"hardship"`
	TurnLength  int                  `yaml:"turn_length"` // Years per turn
	Titles      []string             `yaml:"titles"`      // Titles created at founding, most senior first
}

// Names holds the naming lists by sex.
type Names struct {
	Male   []string `yaml:"male"`
	Female []string `yaml:"female"`
	Family []string `yaml:"family"` // Family names for outsiders marrying in
}

// Succession holds the default succession law and its parameters.
type Succession struct {
	Law           string  `yaml:"law"`
	Gender        string  `yaml:"gender"`
	MaxDegree     int     `yaml:"max_degree"`
	DivisionCount int     `yaml:"division_count"`
	MinAge        int     `yaml:"min_age"`
	MinSkill      int     `yaml:"min_skill"`
	RandomFactor  float64 `yaml:"random_factor"`
}

// Inheritance holds family-name and trait inheritance preferences.
type Inheritance struct {
	FamilyName string `yaml:"family_name"` // "father" or "mother"
}

// Mortality is the aging/death probability curve. The annual chance of death
// is BaseRate below BaselineAge and grows by GrowthPerYear for every year past
// it, capped at MaxRate. Children under ChildAge use ChildRate.
type Mortality struct {
	BaselineAge   int     `yaml:"baseline_age"`
	BaseRate      float64 `yaml:"base_rate"`
	GrowthPerYear float64 `yaml:"growth_per_year"`
	ChildAge      int     `yaml:"child_age"`
	ChildRate     float64 `yaml:"child_rate"`
	MaxRate       float64 `yaml:"max_rate"`
}

// Fertility holds the birth-rate parameters.
type Fertility struct {
	BirthRate    float64 `yaml:"birth_rate"` // Annual chance for an eligible couple
	MaleRatio    float64 `yaml:"male_ratio"`
	MotherMinAge int     `yaml:"mother_min_age"`
	MotherMaxAge int     `yaml:"mother_max_age"`
	FatherMinAge int     `yaml:"father_min_age"`
	FatherMaxAge int     `yaml:"father_max_age"`
	AllowUnwed   bool    `yaml:"allow_unwed"`
}

// Marriage holds the marriage-market parameters.
type Marriage struct {
	MinAge        int     `yaml:"min_age"`
	MaxAge        int     `yaml:"max_age"`
	Rate          float64 `yaml:"rate"`           // Annual chance a matched pair weds
	OutsiderRate  float64 `yaml:"outsider_rate"`  // Annual chance an unmatched single weds an outsider
	KinshipDegree int     `yaml:"kinship_degree"` // Shared-ancestor depth that forbids marriage; 0 forbids none
}

// TraitRule is one row of the trait inheritance table plus the trait's
// demographic modifiers.
type TraitRule struct {
	InheritOne  float64 `yaml:"inherit_one"`  // Chance when one parent carries it
	InheritBoth float64 `yaml:"inherit_both"` // Chance when both parents carry it
	Spontaneous float64 `yaml:"spontaneous"`  // Chance when neither does
	Mortality   float64 `yaml:"mortality"`    // Death chance multiplier, 0 = 1
	Fertility   float64 `yaml:"fertility"`    // Birth chance multiplier, 0 = 1
}

// Hardship shapes the per-year mortality noise (famine and plague years).
type Hardship struct {
	Amplitude float64 `yaml:"amplitude"` // 0 disables hardship
	Frequency float64 `yaml:"frequency"`
}

// Default returns the embedded feudal theme.
func Default() *Config {
	cfg, err := Parse(defaultTheme)
	if err != nil {
		panic(fmt.Sprintf("embedded theme: %v", err))
	}
	return cfg
}

// Load reads and validates a theme file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read theme: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML theme.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &InvalidConfigError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TraitRule returns the rule for a trait name; traits absent from the table
// are never inherited and carry neutral modifiers.
func (c *Config) TraitRule(name string) TraitRule {
	return c.Traits[name]
}
