package models

// Card is the host's view of the flashcard currently in the review queue.
type Card struct {
	ID                string           `json:"_id"`
	RepetitionHistory []ResponseRecord `json:"repetitionHistory,omitempty"`
}

// HasHistory reports whether the card carries any repetition records.
func (c *Card) HasHistory() bool {
	return c != nil && len(c.RepetitionHistory) > 0
}
