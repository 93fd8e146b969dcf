// Package textmatch implements streaming Knuth-Morris-Pratt substring search
// over the text of a document subtree.
package textmatch

// Stream is a lazily consumed sequence of codepoints.
type Stream interface {
	HasNext() bool
	Peek() rune
	// Advance consumes the current codepoint. markStart is true when the
	// consumed codepoint is the first one of a fresh match attempt.
	Advance(markStart bool)
}

// FailureTable builds the KMP failure function of pattern.
func FailureTable(pattern []rune) []int {
	table := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = table[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		table[i] = k
	}
	return table
}

// Search consumes s until pattern is found and returns the offset of the
// match start in the stream, or -1 when the stream ends first. An empty
// pattern matches at 0 without consuming anything.
func Search(s Stream, pattern []rune) int {
	if len(pattern) == 0 {
		return 0
	}
	table := FailureTable(pattern)
	pos, j := 0, 0
	for s.HasNext() {
		c := s.Peek()
		for j > 0 && c != pattern[j] {
			j = table[j-1]
		}
		if c == pattern[j] {
			s.Advance(j == 0)
			j++
		} else {
			s.Advance(false)
		}
		pos++
		if j == len(pattern) {
			return pos - j
		}
	}
	return -1
}

// Runes is a Stream over an in-memory codepoint slice.
type Runes struct {
	runes []rune
	pos   int
}

// NewRunes returns a stream over s.
func NewRunes(s string) *Runes {
	return &Runes{runes: []rune(s)}
}

func (r *Runes) HasNext() bool   { return r.pos < len(r.runes) }
func (r *Runes) Peek() rune      { return r.runes[r.pos] }
func (r *Runes) Advance(_ bool) { r.pos++ }
