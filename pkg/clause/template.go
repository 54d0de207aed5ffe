package clause

import (
	"crypto/sha256"
	"encoding/hex"
)

// SegmentKind tags the variants of a template segment.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentField
	SegmentBlockStart
	SegmentBlockEnd
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentText:
		return "text"
	case SegmentField:
		return "field"
	case SegmentBlockStart:
		return "block-start"
	case SegmentBlockEnd:
		return "block-end"
	default:
		return "unknown"
	}
}

// Segment is one element of a template's flat segment sequence.
type Segment struct {
	Kind  SegmentKind
	Text  string // literal text, SegmentText only
	Name  string // field name, SegmentField only
	Party string // party identifier, block segments and fields inside a block
	Pos   Position
}

// Block describes one repeated span delimited by <PARTY>_START and
// <PARTY>_END. Start and End index into the template's segments.
type Block struct {
	Party  string
	Start  int
	End    int
	Fields []string
	Pos    Position
}

// Template is a validated document template. It is immutable once returned
// by Parse and safe for concurrent rendering.
type Template struct {
	source   string
	hash     string
	segments []Segment
	fields   []string
	blocks   []Block
	// blockAt maps a SegmentBlockStart index to its position in blocks.
	blockAt map[int]int
	// placeholders counts fields and block markers.
	placeholders int
}

// Source returns the raw template text.
func (t *Template) Source() string {
	return t.source
}

// Hash returns the hex SHA-256 digest of the raw template text.
func (t *Template) Hash() string {
	return t.hash
}

// Fields returns the top-level field names in first-seen order.
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Blocks returns the template's blocks in document order.
func (t *Template) Blocks() []Block {
	out := make([]Block, len(t.blocks))
	for i, b := range t.blocks {
		b.Fields = append([]string(nil), b.Fields...)
		out[i] = b
	}
	return out
}

// Segments returns a copy of the segment sequence.
func (t *Template) Segments() []Segment {
	return append([]Segment(nil), t.segments...)
}

// Parties returns the distinct party identifiers in first-seen order.
func (t *Template) Parties() []string {
	seen := make(map[string]bool)
	var parties []string
	for _, b := range t.blocks {
		if !seen[b.Party] {
			seen[b.Party] = true
			parties = append(parties, b.Party)
		}
	}
	return parties
}

// PartyFields returns the union of the field sets of every block for the
// given party, in first-seen order.
func (t *Template) PartyFields(party string) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, b := range t.blocks {
		if b.Party != party {
			continue
		}
		for _, f := range b.Fields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}

// PlaceholderCount returns the number of placeholders, block markers
// included.
func (t *Template) PlaceholderCount() int {
	return t.placeholders
}

// ContentHash returns the cache key used for a raw template text.
func ContentHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
