package parser

import (
	"github.com/joeandaverde/ridgedb/tsql/lexer"
	"github.com/joeandaverde/ridgedb/tsql/scan"
)

// Parser is the common shape every combinator in this package composes.
type Parser = parserFn

// optWS consumes zero or more whitespace tokens and always succeeds.
var optWS Parser = zeroOrMore(token(lexer.TokenWhiteSpace))

// reqWS requires at least one whitespace token.
var reqWS Parser = required(token(lexer.TokenWhiteSpace), nil)

// eofParser succeeds only when the scanner has no more tokens to offer.
func eofParser(scanner scan.TinyScanner) (bool, interface{}) {
	if scanner.Peek().Kind == lexer.TokenEOF {
		return true, nil
	}
	return false, nil
}
