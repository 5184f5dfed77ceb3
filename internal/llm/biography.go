// Person biography generation via Haiku.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// BiographyContext holds the data needed to generate a biography.
type BiographyContext struct {
	Name      string
	House     string
	Sex       string
	BirthYear int
	DeathYear *int
	Age       int
	Traits    []string
	Skills    string   // e.g. "diplomacy 12, stewardship 9, martial 14, intrigue 4"
	Titles    []string // Titles held now, most senior first
	Parents   []string
	Spouse    string
	Children  []string
	Deeds     []string // Event narratives naming this person, oldest first
}

// GenerateBiography creates a Haiku-generated biography for a family member.
func GenerateBiography(ctx context.Context, client *Client, bio BiographyContext) (string, error) {
	if !client.Enabled() {
		return "", ErrDisabled
	}

	var details []string
	details = append(details, fmt.Sprintf("Name: %s of House %s", bio.Name, bio.House))
	details = append(details, fmt.Sprintf("Sex: %s", bio.Sex))
	if bio.DeathYear != nil {
		details = append(details, fmt.Sprintf("Lived: %d to %d (aged %d)", bio.BirthYear, *bio.DeathYear, bio.Age))
	} else {
		details = append(details, fmt.Sprintf("Born: %d (now aged %d)", bio.BirthYear, bio.Age))
	}
	if bio.Skills != "" {
		details = append(details, "Skills: "+bio.Skills)
	}

	if len(bio.Traits) > 0 {
		details = append(details, "Traits: "+strings.Join(bio.Traits, ", "))
	}
	if len(bio.Titles) > 0 {
		details = append(details, "Titles: "+strings.Join(bio.Titles, ", "))
	}
	if len(bio.Parents) > 0 {
		details = append(details, "Parents: "+strings.Join(bio.Parents, " and "))
	}
	if bio.Spouse != "" {
		details = append(details, "Spouse: "+bio.Spouse)
	}
	if len(bio.Children) > 0 {
		details = append(details, "Children: "+strings.Join(bio.Children, ", "))
	}
	if len(bio.Deeds) > 0 {
		details = append(details, "Recorded events: "+strings.Join(bio.Deeds, "; "))
	}

	system := `You are the court chronicler of a noble house. Write a brief biography (150-250 words) of this family member in period-appropriate prose. Mention their lineage, temperament, marriage and any titles they held. Keep every name and year exactly as given. Do not break character or reference the simulation.`

	prompt := fmt.Sprintf("Write a biography for this member of House %s:\n\n%s", bio.House, strings.Join(details, "\n"))

	return client.Complete(ctx, system, prompt, 400)
}
