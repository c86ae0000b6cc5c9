package testutil

// FixedClientIDs hands out the same client ID every time, so resource
// writes in tests produce byte-identical records.
type FixedClientIDs struct {
	id string
}

// NewFixedClientIDs returns a generator for id, or "test-client" when id
// is empty.
func NewFixedClientIDs(id string) *FixedClientIDs {
	if id == "" {
		id = "test-client"
	}
	return &FixedClientIDs{id: id}
}

// Generate returns the fixed ID.
func (g *FixedClientIDs) Generate() string {
	return g.id
}
