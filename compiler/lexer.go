package compiler

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/tale/pkg/fault"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for script source
// ---------------------------------------------------------------------------

// Lexer tokenizes script source code. Tokens are produced lazily by
// NextToken; after the first error or EOF every further call returns that
// same token.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
	parens    int  // open parenthesis depth; newlines inside are whitespace
	final     *Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: utf8.RuneCountInString(l.input[l.lineStart:l.pos]) + 1,
	}
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.input) }

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if l.final != nil {
		return *l.final
	}
	tok := l.scan()
	if tok.Type == TokenEOF || tok.Type == TokenError {
		l.final = &tok
	}
	return tok
}

func (l *Lexer) scan() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	double := func(t TokenType) Token {
		lit := l.input[l.pos : l.readPos+1]
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '\n':
		return l.readNewlines(pos)

	case l.ch == '(':
		l.parens++
		return single(TokenLParen)

	case l.ch == ')':
		if l.parens > 0 {
			l.parens--
		}
		return single(TokenRParen)

	case l.ch == '+':
		return single(TokenPlus)
	case l.ch == '-':
		return single(TokenMinus)
	case l.ch == '*':
		return single(TokenStar)
	case l.ch == '/':
		return single(TokenSlash)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '.':
		return single(TokenPeriod)

	case l.ch == '=':
		if l.peekChar() == '=' {
			return double(TokenEq)
		}
		return single(TokenAssign)

	case l.ch == '!' && l.peekChar() == '=':
		return double(TokenNe)

	case l.ch == '<':
		if l.peekChar() == '=' {
			return double(TokenLe)
		}
		return single(TokenLt)

	case l.ch == '>':
		if l.peekChar() == '=' {
			return double(TokenGe)
		}
		return single(TokenGt)

	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	default:
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", l.ch), Pos: pos}
	}
}

// skipWhitespaceAndComments skips blanks and # comments. Newlines are
// skipped only inside parentheses.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '\n' && l.parens > 0:
			l.readChar()
		case l.ch == '#':
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readNewlines collapses a run of line breaks, blank lines and comment
// lines into a single NEWLINE token.
func (l *Lexer) readNewlines(pos Position) Token {
	for l.ch == '\n' {
		l.readChar()
		l.skipWhitespaceAndComments()
	}
	return Token{Type: TokenNewline, Literal: "\n", Pos: pos}
}

// readString reads a string quoted with ' or ". Strings may not span lines.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar() // consume opening quote

	var sb strings.Builder
	for {
		switch {
		case l.atEOF():
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos, More: true}
		case l.ch == '\n':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case l.ch == quote:
			l.readChar() // consume closing quote
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		case l.ch == '\\':
			escPos := l.position()
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(l.ch)
			default:
				if l.atEOF() {
					return Token{Type: TokenError, Literal: "unterminated string", Pos: pos, More: true}
				}
				return Token{Type: TokenError, Literal: fmt.Sprintf("invalid escape \\%c", l.ch), Pos: escPos}
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readNumber reads an integer or a float with digits on both sides of the
// decimal point.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // consume .
		for isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenFloat, Literal: l.input[start:l.pos], Pos: pos}
	}
	lit := l.input[start:l.pos]
	if _, err := strconv.ParseInt(lit, 10, 64); err != nil {
		return Token{Type: TokenError, Literal: fmt.Sprintf("integer literal %s out of range", lit), Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: lit, Pos: pos}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

// isLetter accepts ASCII letters only; other letters may appear in strings
// and comments.
func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// lexFault converts an error token into a LexError fault.
func lexFault(tok Token) *fault.Fault {
	f := fault.New(fault.LexError, tok.Pos.FaultPos(), "%s", tok.Literal)
	f.More = tok.More
	return f
}

// Tokens returns the token sequence of input. The sequence is lazy and
// restartable: every range over it lexes from the beginning. It ends after
// EOF or the first error token.
func Tokens(input string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		l := NewLexer(input)
		for {
			tok := l.NextToken()
			if !yield(tok) || tok.Type == TokenEOF || tok.Type == TokenError {
				return
			}
		}
	}
}

// Tokenize returns all tokens from the input, ending with EOF. The first
// invalid character stops lexing with a LexError.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	for tok := range Tokens(input) {
		if tok.Type == TokenError {
			return tokens, lexFault(tok)
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}
