package fieldindex

// MaxChunks is the number of chunks a record can hold: the base chunk and
// one overlay.
const MaxChunks = 2

// Chunks is the fixed two-slot chunk set owned by one record.
type Chunks struct {
	chunks [MaxChunks]*Chunk
	n      int
}

// Push adds c as the newest chunk. Pushing a third chunk is a programming
// error.
func (cs *Chunks) Push(c *Chunk) {
	if cs.n >= MaxChunks {
		panic("fieldindex: record already holds two chunks")
	}
	cs.chunks[cs.n] = c
	cs.n++
}

func (cs *Chunks) At(i int) *Chunk {
	if i < 0 || i >= cs.n {
		return nil
	}
	return cs.chunks[i]
}

// Back returns the newest chunk, or nil if there is none.
func (cs *Chunks) Back() *Chunk {
	if cs.n == 0 {
		return nil
	}
	return cs.chunks[cs.n-1]
}

func (cs *Chunks) Len() int    { return cs.n }
func (cs *Chunks) Empty() bool { return cs.n == 0 }

func (cs *Chunks) Clear() {
	cs.chunks = [MaxChunks]*Chunk{}
	cs.n = 0
}

// Lookup returns the newest chunk that indexes id.
func (cs *Chunks) Lookup(id FieldID) (*Chunk, bool) {
	for i := cs.n - 1; i >= 0; i-- {
		if cs.chunks[i].Has(id) {
			return cs.chunks[i], true
		}
	}
	return nil, false
}
