package memindex

// Translation maps element IDs of one indexer onto the IDs a merged view
// exposes. Untranslate inverts Translate.
type Translation interface {
	Translate(id int64) int64
	Untranslate(id int64) int64
}

// Offset translates by adding a constant.
type Offset int64

func (o Offset) Translate(id int64) int64   { return id + int64(o) }
func (o Offset) Untranslate(id int64) int64 { return id - int64(o) }

// Table assigns merged IDs on first use, counting up from a base.
type Table struct {
	next int64
	fwd  map[int64]int64
	back map[int64]int64
}

// NewTable returns a table whose first assigned ID is base.
func NewTable(base int64) *Table {
	return &Table{
		next: base,
		fwd:  make(map[int64]int64),
		back: make(map[int64]int64),
	}
}

// Translate returns the merged ID of id, assigning one if needed.
func (t *Table) Translate(id int64) int64 {
	if m, ok := t.fwd[id]; ok {
		return m
	}
	m := t.next
	t.next++
	t.fwd[id] = m
	t.back[m] = id
	return m
}

// Untranslate returns the source ID of a merged ID, or 0 if it was never
// assigned.
func (t *Table) Untranslate(id int64) int64 {
	return t.back[id]
}

// Len returns the number of assigned IDs.
func (t *Table) Len() int {
	return len(t.fwd)
}
