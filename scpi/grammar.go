package scpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Token patterns of a numeric field.
const (
	// NumberPattern is the numeric part: an optional sign followed by digits,
	// dots, exponent letters and signs. Values like "1-2" lex as a number and
	// are rejected when converted.
	NumberPattern = `[+-]?[0-9.eE+-]+`
	// UnitPattern is the single trailing unit letter.
	UnitPattern = `[A-Za-z]`
)

// Token names.
const (
	TokenNumber = "Number"
	TokenUnit   = "Unit"
)

// FieldLexer splits one numeric field into a Number and an optional Unit.
var FieldLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: TokenNumber, Pattern: NumberPattern},
	{Name: TokenUnit, Pattern: UnitPattern},
})

type fieldAST struct {
	Number string `@Number`
	Unit   string `@Unit?`
}

var fieldParser = participle.MustBuild[fieldAST](
	participle.Lexer(FieldLexer),
)

// NumberWithUnit is a decoded numeric field.
type NumberWithUnit struct {
	Value float64
	// Unit is the unit letter, empty when the field had none.
	Unit string
}

// ParseNumber decodes one numeric field such as "1.234E-6A" or "100".
// Surrounding white space is ignored. Failures are *ParseError.
func ParseNumber(field string) (NumberWithUnit, error) {
	input := strings.TrimSpace(field)
	if input == "" {
		return NumberWithUnit{}, &ParseError{Input: field, Reason: "empty field"}
	}

	ast, err := fieldParser.ParseString("", input)
	if err != nil {
		return NumberWithUnit{}, &ParseError{Input: field, Reason: "grammar mismatch", Err: err}
	}

	value, err := strconv.ParseFloat(ast.Number, 64)
	if err != nil {
		return NumberWithUnit{}, &ParseError{Input: field, Reason: "invalid number", Err: err}
	}

	return NumberWithUnit{Value: value, Unit: ast.Unit}, nil
}

// Grammar selects the accepted shape of a reading line.
type Grammar struct {
	// Version identifies the grammar in configuration.
	Version string
	// RequireUnit rejects a value field without unit letter.
	RequireUnit bool
	// MinFields and MaxFields bound the number of comma separated fields.
	MinFields int
	MaxFields int
}

// Known grammar versions.
var (
	// GrammarV1 is the canonical grammar: unit letter optional, one to three
	// fields (value, timestamp, status).
	GrammarV1 = Grammar{Version: "v1", RequireUnit: false, MinFields: 1, MaxFields: 3}

	// GrammarStrict matches the full instrument format: unit letter required,
	// exactly three fields.
	GrammarStrict = Grammar{Version: "strict", RequireUnit: true, MinFields: 3, MaxFields: 3}
)

// DefaultGrammar is used when no grammar is configured.
var DefaultGrammar = GrammarV1

// GrammarByName returns the grammar with the given version. An empty name
// selects DefaultGrammar.
func GrammarByName(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultGrammar, nil
	case GrammarV1.Version:
		return GrammarV1, nil
	case GrammarStrict.Version:
		return GrammarStrict, nil
	default:
		return Grammar{}, fmt.Errorf("scpi: unknown grammar %q", name)
	}
}

// String returns the grammar version.
func (g Grammar) String() string { return g.Version }

func (g Grammar) checkFields(n int) error {
	if n < g.MinFields || n > g.MaxFields {
		if g.MinFields == g.MaxFields {
			return fmt.Errorf("got %d fields, want %d", n, g.MinFields)
		}

		return fmt.Errorf("got %d fields, want %d to %d", n, g.MinFields, g.MaxFields)
	}

	return nil
}

// toTimestamp truncates v to an unsigned integer.
func toTimestamp(v float64) (uint64, bool) {
	if math.IsNaN(v) || v < 0 || v >= math.MaxUint64 {
		return 0, false
	}

	return uint64(math.Trunc(v)), true
}
