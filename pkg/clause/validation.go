package clause

import (
	"fmt"
)

// blockFrame is an open block on the validation stack.
type blockFrame struct {
	party  string
	start  int
	fields []string
	seen   map[string]bool
	pos    Position
	raw    string
}

// fieldScope remembers where a field name was first seen.
type fieldScope struct {
	party string // empty for top level
	pos   Position
}

// Parse tokenizes and validates raw template text. It returns either a
// validated, immutable Template or a *SyntaxError / *AmbiguousScopeError
// naming the offending construct.
func Parse(source string) (*Template, error) {
	return parseTemplate(source, GetGlobalConfig().MaxTemplateSize)
}

// checkSize rejects template texts over maxSize bytes; 0 means no limit.
func checkSize(source string, maxSize int) error {
	if maxSize > 0 && len(source) > maxSize {
		return NewSyntaxError(
			fmt.Sprintf("template is %d bytes, limit is %d", len(source), maxSize), "", Position{})
	}
	return nil
}

func parseTemplate(source string, maxSize int) (*Template, error) {
	if err := checkSize(source, maxSize); err != nil {
		return nil, err
	}

	tokens := Tokenize(source)

	tmpl := &Template{
		source:   source,
		hash:     ContentHash(source),
		segments: make([]Segment, 0, len(tokens)),
		blockAt:  make(map[int]int),
	}

	var stack []*blockFrame
	topSeen := make(map[string]bool)
	scopes := make(map[string]fieldScope)

	for _, tok := range tokens {
		idx := len(tmpl.segments)

		switch tok.Type {
		case TokenText:
			tmpl.segments = append(tmpl.segments, Segment{Kind: SegmentText, Text: tok.Value, Pos: tok.Pos})
			continue

		case TokenBlockStart:
			tmpl.placeholders++
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.party == tok.Party {
					return nil, NewSyntaxError(
						fmt.Sprintf("block %s re-opened before %s_END", tok.Party, tok.Party), tok.Raw, tok.Pos)
				}
				return nil, NewSyntaxError(
					fmt.Sprintf("block %s cannot be nested inside block %s", tok.Party, top.party), tok.Raw, tok.Pos)
			}
			stack = append(stack, &blockFrame{
				party: tok.Party,
				start: idx,
				seen:  make(map[string]bool),
				pos:   tok.Pos,
				raw:   tok.Raw,
			})
			tmpl.segments = append(tmpl.segments, Segment{Kind: SegmentBlockStart, Party: tok.Party, Pos: tok.Pos})

		case TokenBlockEnd:
			tmpl.placeholders++
			if len(stack) == 0 {
				return nil, NewSyntaxError(
					fmt.Sprintf("%s has no matching %s_START", tok.Value, tok.Party), tok.Raw, tok.Pos)
			}
			top := stack[len(stack)-1]
			if top.party != tok.Party {
				return nil, NewSyntaxError(
					fmt.Sprintf("%s does not close open block %s", tok.Value, top.party), tok.Raw, tok.Pos)
			}
			stack = stack[:len(stack)-1]

			tmpl.segments = append(tmpl.segments, Segment{Kind: SegmentBlockEnd, Party: tok.Party, Pos: tok.Pos})
			tmpl.blockAt[top.start] = len(tmpl.blocks)
			tmpl.blocks = append(tmpl.blocks, Block{
				Party:  top.party,
				Start:  top.start,
				End:    idx,
				Fields: top.fields,
				Pos:    top.pos,
			})

		case TokenField:
			tmpl.placeholders++
			party := ""
			if len(stack) > 0 {
				party = stack[len(stack)-1].party
			}

			if prev, ok := scopes[tok.Value]; ok {
				if (prev.party == "") != (party == "") {
					blockParty := party
					if blockParty == "" {
						blockParty = prev.party
					}
					return nil, &AmbiguousScopeError{Name: tok.Value, Party: blockParty, Pos: tok.Pos}
				}
			} else {
				scopes[tok.Value] = fieldScope{party: party, pos: tok.Pos}
			}

			if party == "" {
				if !topSeen[tok.Value] {
					topSeen[tok.Value] = true
					tmpl.fields = append(tmpl.fields, tok.Value)
				}
			} else {
				top := stack[len(stack)-1]
				if !top.seen[tok.Value] {
					top.seen[tok.Value] = true
					top.fields = append(top.fields, tok.Value)
				}
			}
			tmpl.segments = append(tmpl.segments, Segment{Kind: SegmentField, Name: tok.Value, Party: party, Pos: tok.Pos})
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, NewSyntaxError(
			fmt.Sprintf("block %s is never closed", top.party), top.raw, top.pos)
	}

	if tmpl.placeholders == 0 {
		return nil, NewSyntaxError("template contains no placeholders", "", Position{})
	}

	logger := GetLogger()
	if logger.IsDebugMode() {
		logger.WithFields(Fields{
			"hash":         tmpl.hash[:12],
			"fields":       len(tmpl.fields),
			"blocks":       len(tmpl.blocks),
			"placeholders": tmpl.placeholders,
		}).Debug("Template validated")
	}

	return tmpl, nil
}

// BlockSummary is the tooling view of a Block.
type BlockSummary struct {
	Party  string   `json:"party"`
	Fields []string `json:"fields"`
	Line   int      `json:"line"`
	Column int      `json:"column"`
}

// ValidationReport describes the outcome of validating a template text.
type ValidationReport struct {
	Valid        bool           `json:"valid"`
	Error        string         `json:"error,omitempty"`
	Hash         string         `json:"hash"`
	Placeholders int            `json:"placeholders"`
	Fields       []string       `json:"fields"`
	Blocks       []BlockSummary `json:"blocks"`
}

// Validate parses source and summarizes the result. A rejected template is
// reported through the report's Valid and Error fields; the returned error
// is the same validation failure, for callers that prefer to branch on it.
func Validate(source string) (ValidationReport, error) {
	tmpl, err := Parse(source)
	if err != nil {
		return ValidationReport{
			Valid:  false,
			Error:  err.Error(),
			Hash:   ContentHash(source),
			Fields: []string{},
			Blocks: []BlockSummary{},
		}, err
	}
	return ReportFor(tmpl), nil
}

// ReportFor summarizes an already validated template.
func ReportFor(tmpl *Template) ValidationReport {
	report := ValidationReport{
		Valid:        true,
		Hash:         tmpl.Hash(),
		Placeholders: tmpl.PlaceholderCount(),
		Fields:       tmpl.Fields(),
		Blocks:       make([]BlockSummary, 0, len(tmpl.blocks)),
	}
	if report.Fields == nil {
		report.Fields = []string{}
	}
	for _, b := range tmpl.blocks {
		fields := append([]string{}, b.Fields...)
		report.Blocks = append(report.Blocks, BlockSummary{
			Party:  b.Party,
			Fields: fields,
			Line:   b.Pos.Line,
			Column: b.Pos.Column,
		})
	}
	return report
}
