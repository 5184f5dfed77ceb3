// Event narration: turns notable dynasty events into chronicle prose.
package llm

import (
	"context"
	"fmt"
)

// EventContext is what the chronicler is told about one event.
type EventContext struct {
	House     string
	Theme     string
	Year      int
	Category  string
	Narrative string // The engine's plain account of the event
}

const chroniclerSystem = `You are the court chronicler of a noble house in a %s world. You record births, deaths, marriages and the passing of titles.

Narrate this event in 2-3 sentences of period-appropriate prose. Be vivid but concise. Keep every name and year exactly as given. Do not break character or reference the simulation.`

// NarrateEvent creates period-appropriate prose for a notable event.
func NarrateEvent(ctx context.Context, client *Client, ev EventContext) (string, error) {
	if !client.Enabled() {
		return "", ErrDisabled
	}

	prompt := fmt.Sprintf("House: %s\nYear: %d\nKind of event: %s\n\nEvent to narrate: %s",
		ev.House, ev.Year, ev.Category, ev.Narrative)

	return client.Complete(ctx, fmt.Sprintf(chroniclerSystem, ev.Theme), prompt, 200)
}
