package comm

import (
	"encoding/json"
	"time"
)

const TopicCardIssued = "card.issued"

// Message is the envelope published on every subject.
type Message struct {
	Type     string          `json:"type"` // e.g. "card-issued"
	Data     json.RawMessage `json:"data"`
	Instance string          `json:"instance"`
}

type CardIssued struct {
	CardID   string    `json:"card_id"`
	ViewURL  string    `json:"view_url"`
	Photo    bool      `json:"photo"`
	DocCount int       `json:"doc_count"`
	IssuedAt time.Time `json:"issued_at"`
}
