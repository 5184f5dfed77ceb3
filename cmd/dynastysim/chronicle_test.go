package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/llm"
	"github.com/talgya/dynasty/internal/theme"
)

func TestNotable(t *testing.T) {
	assert.True(t, notable(engine.TurnEvent{Category: engine.CategorySuccession}))
	assert.True(t, notable(engine.TurnEvent{Category: engine.CategoryCrisis}))
	assert.True(t, notable(engine.TurnEvent{Category: engine.CategoryDeath, Payload: map[string]any{"titles": []string{"Duchy of Ashford"}}}))
	assert.False(t, notable(engine.TurnEvent{Category: engine.CategoryDeath, Payload: map[string]any{"age": 3}}))
	assert.False(t, notable(engine.TurnEvent{Category: engine.CategoryBirth}))
}

func TestOfferNeverBlocks(t *testing.T) {
	d, err := engine.NewDynasty("Voss", theme.Default(), 1, engine.Founding{})
	require.NoError(t, err)
	events := make([]engine.TurnEvent, chronicleBacklog+10)
	for i := range events {
		events[i] = engine.TurnEvent{Seq: uint64(i + 1), Category: engine.CategoryCrisis}
	}

	disabled := newChronicler(nil, nil, "feudal")
	disabled.offer(d, events)
	assert.Zero(t, len(disabled.queue))

	c := newChronicler(llm.NewClient("test-key"), nil, "feudal")
	c.offer(d, events)
	assert.Equal(t, chronicleBacklog, len(c.queue))
}
