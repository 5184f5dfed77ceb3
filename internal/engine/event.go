package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/dynasty/internal/family"
)

// Category classifies a TurnEvent.
type Category string

const (
	CategoryBirth            Category = "birth"
	CategoryDeath            Category = "death"
	CategoryMarriage         Category = "marriage"
	CategorySuccession       Category = "succession"
	CategoryCrisis           Category = "crisis"
	CategoryTitle            Category = "title"
	CategoryLaw              Category = "law"
	CategoryActionFailed     Category = "action_failed"
	CategoryResolutionFailed Category = "resolution_failed"
)

// TurnEvent is one entry in a dynasty's history. Events carry structured
// data only; flavour text is produced elsewhere from this data.
type TurnEvent struct {
	ID        uuid.UUID         `json:"id"`
	Seq       uint64            `json:"seq"` // 1-based, gapless per dynasty
	Turn      int               `json:"turn"`
	Year      int               `json:"year"`
	Category  Category          `json:"category"`
	Subjects  []family.PersonID `json:"subjects,omitempty"`
	Narrative string            `json:"narrative"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Failure   *Failure          `json:"failure,omitempty"`
}

// Failure describes a rejected action or a failed resolution step.
type Failure struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func failureOf(err error) *Failure {
	f := &Failure{Message: err.Error()}
	if code, ok := family.CodeOf(err); ok {
		f.Code = string(code)
	}
	return f
}

// eventID derives a stable identifier from the dynasty and sequence number.
func eventID(dynasty uuid.UUID, seq uint64) uuid.UUID {
	return uuid.NewSHA1(dynasty, []byte(fmt.Sprintf("event/%d", seq)))
}

// EventLog is an append-only, ordered record of a dynasty's events.
// Reads may run concurrently with the single writer.
type EventLog struct {
	mu     sync.RWMutex
	events []TurnEvent
}

// NewEventLog returns a log holding events, which must already be in
// sequence order.
func NewEventLog(events ...TurnEvent) *EventLog {
	return &EventLog{events: slices.Clone(events)}
}

// Append adds events to the end of the log.
func (l *EventLog) Append(events ...TurnEvent) {
	l.mu.Lock()
	l.events = append(l.events, events...)
	l.mu.Unlock()
}

// Events returns a copy of every event.
func (l *EventLog) Events() []TurnEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// Since returns the events with a sequence number greater than seq.
func (l *EventLog) Since(seq uint64) []TurnEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, _ := slices.BinarySearchFunc(l.events, seq+1, func(e TurnEvent, s uint64) int {
		switch {
		case e.Seq < s:
			return -1
		case e.Seq > s:
			return 1
		}
		return 0
	})
	return slices.Clone(l.events[i:])
}

// Len returns the number of events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LastSeq returns the sequence number of the newest event, or 0.
func (l *EventLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return 0
	}
	return l.events[len(l.events)-1].Seq
}

// MarshalJSONL encodes the log as one JSON object per line. Payload maps are
// encoded with sorted keys, so equal logs encode to equal bytes.
func (l *EventLog) MarshalJSONL() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range l.events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode event %d: %w", e.Seq, err)
		}
	}
	return buf.Bytes(), nil
}
