// Package scpi holds the command vocabulary and the response grammars used to
// talk to the bench instruments.
//
// Two grammars are implemented:
//
//   - the numeric reading grammar, a comma separated list of fields where
//     each numeric field is a number optionally followed by one unit letter,
//     e.g. "+1.234000E-06A,+1.000000E+02,+0.000000E+00". It is tokenized by
//     a participle lexer and versioned through Grammar.
//   - the typed answer grammar used by short replies, a value followed by the
//     letter "A": "OKA", "12A", "1.5A".
package scpi
