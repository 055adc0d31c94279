// Package events publishes dictionary changes to Kafka and replays them onto
// mirror copies of the dictionaries.
package events

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
)

// Event is the wire form of a dictionary change. Only the words that
// actually changed are carried, so replaying an event is idempotent.
type Event struct {
	Type       dictionary.Operation `json:"type"`
	Dictionary string               `json:"dictionary"`
	Encoding   charset.Label        `json:"encoding"`
	Added      []string             `json:"added,omitempty"`
	Removed    []string             `json:"removed,omitempty"`
	Total      int                  `json:"total"`
	RequestID  string               `json:"request_id,omitempty"`
	At         time.Time            `json:"at"`
}

// FromChange converts a change reported by dictionary.Service.
func FromChange(c dictionary.Change) Event {
	return Event{
		Type:       c.Operation,
		Dictionary: c.Dictionary,
		Encoding:   c.Encoding,
		Added:      c.Added,
		Removed:    c.Removed,
		Total:      c.Total,
		RequestID:  c.RequestID,
		At:         c.At,
	}
}
