package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline // statement separator

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14
	TokenString     // 'hello', "hello"
	TokenIdentifier // foo, _bar2

	// Symbols
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenLParen  // (
	TokenRParen  // )
	TokenComma   // ,
	TokenPeriod  // .
	TokenAssign  // =
	TokenEq      // ==
	TokenNe      // !=
	TokenLt      // <
	TokenLe      // <=
	TokenGt      // >
	TokenGe      // >=

	// Keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenIf
	TokenThen
	TokenElif
	TokenElse
	TokenEnd
	TokenWhile
	TokenDo
	TokenTrue
	TokenFalse
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenPeriod:     ".",
	TokenAssign:     "=",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenAnd:        "and",
	TokenOr:         "or",
	TokenNot:        "not",
	TokenIf:         "if",
	TokenThen:       "then",
	TokenElif:       "elif",
	TokenElse:       "else",
	TokenEnd:        "end",
	TokenWhile:      "while",
	TokenDo:         "do",
	TokenTrue:       "true",
	TokenFalse:      "false",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// TokenClass is the coarse category of a token.
type TokenClass int

const (
	ClassOther TokenClass = iota // EOF, error, newline
	ClassIdentifier
	ClassInteger
	ClassFloat
	ClassString
	ClassSymbol
	ClassKeyword
)

var classNames = map[TokenClass]string{
	ClassOther:      "other",
	ClassIdentifier: "identifier",
	ClassInteger:    "integer",
	ClassFloat:      "float",
	ClassString:     "string",
	ClassSymbol:     "symbol",
	ClassKeyword:    "keyword",
}

func (c TokenClass) String() string { return classNames[c] }

// Class returns the category the token type belongs to.
func (t TokenType) Class() TokenClass {
	switch {
	case t == TokenIdentifier:
		return ClassIdentifier
	case t == TokenInteger:
		return ClassInteger
	case t == TokenFloat:
		return ClassFloat
	case t == TokenString:
		return ClassString
	case t >= TokenPlus && t <= TokenGe:
		return ClassSymbol
	case t >= TokenAnd && t <= TokenFalse:
		return ClassKeyword
	}
	return ClassOther
}

// IsComparison reports whether t is a comparison operator.
func (t TokenType) IsComparison() bool {
	return t >= TokenEq && t <= TokenGe
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text; decoded contents for strings; message for errors
	Pos     Position // start position
	More    bool     // error caused by input ending too early
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// describe renders a token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "end of line"
	case TokenString:
		return fmt.Sprintf("string %q", t.Literal)
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%s %q", t.Type.Class(), t.Literal)
	}
	return fmt.Sprintf("%q", t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"if":    TokenIf,
	"then":  TokenThen,
	"elif":  TokenElif,
	"else":  TokenElse,
	"end":   TokenEnd,
	"while": TokenWhile,
	"do":    TokenDo,
	"true":  TokenTrue,
	"false": TokenFalse,
}

// IsKeyword reports whether name is reserved.
func IsKeyword(name string) bool {
	_, ok := reservedWords[name]
	return ok
}
