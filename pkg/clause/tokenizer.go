package clause

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TokenType represents the type of a template token
type TokenType int

const (
	TokenText TokenType = iota
	TokenField
	TokenBlockStart
	TokenBlockEnd
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "text"
	case TokenField:
		return "field"
	case TokenBlockStart:
		return "block-start"
	case TokenBlockEnd:
		return "block-end"
	default:
		return "unknown"
	}
}

const (
	blockStartSuffix = "_START"
	blockEndSuffix   = "_END"
)

// Token represents a scanned template token. For TokenText, Value is the
// literal text. For TokenField, Value is the field name. For block tokens,
// Party holds the party identifier and Value the full marker name.
type Token struct {
	Type  TokenType
	Value string
	Party string
	Raw   string
	Pos   Position
}

var (
	// Regular expression to match placeholders: ${ + [A-Z0-9_]+ + }
	tokenRegex = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)
)

// Tokenize splits a template string into literal text and placeholder
// tokens. Anything that does not match the placeholder grammar, such as
// ${}, ${name} or an unterminated ${X, stays literal text.
func Tokenize(input string) []Token {
	var tokens []Token
	lastEnd := 0

	logger := GetLogger()
	if logger.IsDebugMode() {
		logger.WithField("input_length", len(input)).Debug("Starting tokenization")
	}

	lines := newLineTracker(input)
	matches := tokenRegex.FindAllStringSubmatchIndex(input, -1)

	for _, match := range matches {
		if match[0] > lastEnd {
			tokens = append(tokens, Token{
				Type:  TokenText,
				Value: input[lastEnd:match[0]],
				Raw:   input[lastEnd:match[0]],
				Pos:   lines.position(lastEnd),
			})
		}

		token := classifyToken(input[match[2]:match[3]])
		token.Raw = input[match[0]:match[1]]
		token.Pos = lines.position(match[0])
		if logger.IsDebugMode() {
			logger.WithFields(Fields{
				"type":   token.Type.String(),
				"name":   token.Value,
				"offset": match[0],
			}).Debug("Found placeholder")
		}
		tokens = append(tokens, token)

		lastEnd = match[1]
	}

	if lastEnd < len(input) {
		tokens = append(tokens, Token{
			Type:  TokenText,
			Value: input[lastEnd:],
			Raw:   input[lastEnd:],
			Pos:   lines.position(lastEnd),
		})
	}

	if logger.IsDebugMode() {
		logger.WithField("token_count", len(tokens)).Debug("Tokenization complete")
	}

	return tokens
}

// classifyToken determines whether a placeholder name is a block marker.
// A marker needs a non-empty party identifier in front of the suffix, so
// ${_START} is an ordinary field.
func classifyToken(name string) Token {
	if party, ok := strings.CutSuffix(name, blockStartSuffix); ok && party != "" {
		return Token{Type: TokenBlockStart, Value: name, Party: party}
	}
	if party, ok := strings.CutSuffix(name, blockEndSuffix); ok && party != "" {
		return Token{Type: TokenBlockEnd, Value: name, Party: party}
	}
	return Token{Type: TokenField, Value: name}
}

// FindPlaceholders returns every well-formed placeholder in the input, in
// document order, including block markers.
func FindPlaceholders(input string) []string {
	matches := tokenRegex.FindAllString(input, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// ContainsPlaceholder reports whether s has at least one well-formed
// placeholder.
func ContainsPlaceholder(s string) bool {
	return tokenRegex.MatchString(s)
}

// lineTracker converts increasing byte offsets into line/column positions
// without rescanning the input from the start.
type lineTracker struct {
	input     string
	offset    int
	line      int
	lineStart int
}

func newLineTracker(input string) *lineTracker {
	return &lineTracker{input: input, line: 1}
}

func (lt *lineTracker) position(offset int) Position {
	for lt.offset < offset {
		if lt.input[lt.offset] == '\n' {
			lt.line++
			lt.lineStart = lt.offset + 1
		}
		lt.offset++
	}
	return Position{
		Offset: offset,
		Line:   lt.line,
		Column: utf8.RuneCountInString(lt.input[lt.lineStart:offset]) + 1,
	}
}
