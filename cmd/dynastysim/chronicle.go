package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/llm"
	"github.com/talgya/dynasty/internal/persistence"
)

// chronicleBacklog bounds the events waiting for narration; when it is full
// further events are skipped rather than slowing the turns down.
const chronicleBacklog = 64

type chronicleItem struct {
	dynasty uuid.UUID
	house   string
	event   engine.TurnEvent
}

// chronicler turns notable events into prose on its own goroutine.
type chronicler struct {
	client *llm.Client
	db     *persistence.DB
	theme  string
	queue  chan chronicleItem
}

func newChronicler(client *llm.Client, db *persistence.DB, themeName string) *chronicler {
	return &chronicler{
		client: client,
		db:     db,
		theme:  themeName,
		queue:  make(chan chronicleItem, chronicleBacklog),
	}
}

// notable reports whether an event is worth a chronicle entry.
func notable(e engine.TurnEvent) bool {
	switch e.Category {
	case engine.CategorySuccession, engine.CategoryCrisis:
		return true
	case engine.CategoryDeath:
		_, heldTitles := e.Payload["titles"]
		return heldTitles
	}
	return false
}

// offer queues the notable events of a turn without blocking.
func (c *chronicler) offer(d *engine.Dynasty, events []engine.TurnEvent) {
	if !c.client.Enabled() {
		return
	}
	for _, e := range events {
		if !notable(e) {
			continue
		}
		select {
		case c.queue <- chronicleItem{dynasty: d.ID, house: d.House, event: e}:
		default:
			slog.Debug("chronicle backlog full", "house", d.House, "seq", e.Seq)
		}
	}
}

func (c *chronicler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.queue:
			c.narrate(ctx, item)
		}
	}
}

func (c *chronicler) narrate(ctx context.Context, item chronicleItem) {
	callCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	text, err := llm.NarrateEvent(callCtx, c.client, llm.EventContext{
		House:     item.house,
		Theme:     c.theme,
		Year:      item.event.Year,
		Category:  string(item.event.Category),
		Narrative: item.event.Narrative,
	})
	if err != nil {
		slog.Warn("narration failed", "house", item.house, "seq", item.event.Seq, "error", err)
		return
	}
	if err := c.db.SaveChronicle(item.dynasty, item.event.Seq, text); err != nil {
		slog.Error("chronicle save failed", "house", item.house, "error", err)
	}
}
