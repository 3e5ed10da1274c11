package scpi

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Kind names the type a typed answer is decoded as.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "integer"
	KindFloat  Kind = "float"
)

// AnswerSuffix ends every typed answer.
const AnswerSuffix = "A"

// Body patterns of the typed answers. A typed answer is one body token
// followed by AnswerSuffix.
const (
	StringAnswerPattern = `\w+`
	IntAnswerPattern    = `[0-9]+`
	FloatAnswerPattern  = `[0-9.]+`
)

// TokenAnswer names the body token of a typed answer.
const TokenAnswer = "Answer"

type answerAST struct {
	Body string `@Answer`
}

func newAnswerParser(pattern string) *participle.Parser[answerAST] {
	return participle.MustBuild[answerAST](
		participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
			{Name: TokenAnswer, Pattern: pattern},
		})),
	)
}

var answerParsers = map[Kind]*participle.Parser[answerAST]{
	KindString: newAnswerParser(StringAnswerPattern),
	KindInt:    newAnswerParser(IntAnswerPattern),
	KindFloat:  newAnswerParser(FloatAnswerPattern),
}

// answerBody strips AnswerSuffix and parses the remaining body as a single
// token of the kind's pattern.
func answerBody(line string, kind Kind) (string, error) {
	body, ok := strings.CutSuffix(line, AnswerSuffix)
	if !ok || body == "" {
		return "", &InvalidResponseTypeError{Raw: line, Kind: kind}
	}

	ast, err := answerParsers[kind].ParseString("", body)
	if err != nil {
		return "", &InvalidResponseTypeError{Raw: line, Kind: kind}
	}

	return ast.Body, nil
}

// DecodeString decodes a word answer such as "OKA" into "OK".
func DecodeString(line string) (string, error) {
	return answerBody(line, KindString)
}

// DecodeInt decodes an unsigned integer answer such as "12A".
func DecodeInt(line string) (int, error) {
	body, err := answerBody(line, KindInt)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(body)
	if err != nil {
		return 0, &InvalidResponseTypeError{Raw: line, Kind: KindInt}
	}

	return v, nil
}

// DecodeFloat decodes an unsigned decimal answer such as "1.5A".
func DecodeFloat(line string) (float64, error) {
	body, err := answerBody(line, KindFloat)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, &InvalidResponseTypeError{Raw: line, Kind: KindFloat}
	}

	return v, nil
}
