package interpret

// Passage is a stored guideline fragment returned by a similarity search.
type Passage struct {
	ID         string
	DocumentID string
	Title      string
	Topic      string
	Content    string
	Score      float64
}
