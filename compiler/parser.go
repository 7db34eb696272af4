package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/tale/pkg/fault"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for script syntax
// ---------------------------------------------------------------------------

// Parser parses script source code into an AST. Parsing stops at the first
// error; no partial tree is returned.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevToken Token // last consumed token, for span ends
	err       *fault.Fault
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.curToken = p.lexer.NextToken()
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.err = lexFault(p.curToken)
	}
	return p
}

// ParseScript parses a whole script.
func ParseScript(input string) (*Block, error) {
	return NewParser(input).ParseScript()
}

// ParseExpr parses a single expression. Surrounding newlines are allowed.
func ParseExpr(input string) (Expr, error) {
	return NewParser(input).ParseExpression()
}

// nextToken advances to the next token. Reaching an error token stops
// parsing with the lexer's fault.
func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.err = lexFault(p.curToken)
		panic(bailout{})
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes a token of type t or fails naming what was expected.
func (p *Parser) expect(t TokenType, context string) Token {
	if !p.curTokenIs(t) {
		p.failf("expected %s %s, got %s", expectedName(t), context, p.curToken.describe())
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

// failf records a SyntaxError at the current token and unwinds. Running out
// of input marks the fault as needing more input.
func (p *Parser) failf(format string, args ...any) {
	f := fault.New(fault.SyntaxError, p.curToken.Pos.FaultPos(), format, args...)
	f.More = p.curTokenIs(TokenEOF)
	p.err = f
	panic(bailout{})
}

// guard converts a bailout into the recorded error.
func (p *Parser) guard(err *error) {
	if r := recover(); r != nil {
		if _, ok := r.(bailout); !ok {
			panic(r)
		}
		*err = p.err
	}
}

func (p *Parser) skipNewlines() {
	for p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// span returns the span from start to the last consumed token.
func (p *Parser) span(start Position) Span {
	return MakeSpan(start, p.prevToken.Pos)
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseScript parses statements up to end of input.
func (p *Parser) ParseScript() (block *Block, err error) {
	defer p.guard(&err)
	if p.err != nil {
		return nil, p.err
	}
	block = p.parseBlock(TokenEOF)
	return block, nil
}

// ParseExpression parses a single expression up to end of input.
func (p *Parser) ParseExpression() (expr Expr, err error) {
	defer p.guard(&err)
	if p.err != nil {
		return nil, p.err
	}
	p.skipNewlines()
	expr = p.parseExpr()
	p.skipNewlines()
	if !p.curTokenIs(TokenEOF) {
		p.failf("unexpected %s after expression", p.curToken.describe())
	}
	return expr, nil
}

// parseBlock parses statements until one of the terminators. The
// terminator itself is not consumed.
func (p *Parser) parseBlock(terminators ...TokenType) *Block {
	start := p.curToken.Pos
	block := &Block{}

	isTerminator := func() bool {
		for _, t := range terminators {
			if p.curTokenIs(t) {
				return true
			}
		}
		return false
	}

	p.skipNewlines()
	for !isTerminator() {
		if p.curTokenIs(TokenEOF) {
			p.failf("expected %s before end of input", describeTerminators(terminators))
		}
		block.Statements = append(block.Statements, p.parseStatement())

		switch {
		case p.curTokenIs(TokenNewline):
			p.skipNewlines()
		case isTerminator(), p.curTokenIs(TokenEOF):
		default:
			p.failf("expected end of line after statement, got %s", p.curToken.describe())
		}
	}
	block.SpanVal = MakeSpan(start, p.curToken.Pos)
	return block
}

func describeTerminators(ts []TokenType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = expectedName(t)
	}
	return strings.Join(names, " or ")
}

func expectedName(t TokenType) string {
	if t == TokenIdentifier {
		return "identifier"
	}
	return "'" + t.String() + "'"
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	switch {
	case p.curTokenIs(TokenIf):
		return p.parseIf()
	case p.curTokenIs(TokenWhile):
		return p.parseWhile()
	case p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenAssign):
		return p.parseAssignment()
	}

	start := p.curToken.Pos
	expr := p.parseExpr()
	if p.curTokenIs(TokenAssign) {
		p.failf("cannot assign to expression; expected a variable name before '='")
	}
	return &ExprStmt{SpanVal: p.span(start), Expr: expr}
}

// parseAssignment parses: name = expr
func (p *Parser) parseAssignment() Stmt {
	start := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken() // name
	p.nextToken() // =
	value := p.parseExpr()
	return &Assignment{SpanVal: p.span(start), Name: name, Value: value}
}

// parseIf parses: if cond then block (elif cond then block)* (else block)? end
func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	stmt := &IfStmt{}

	p.nextToken() // if
	for {
		cond := p.parseExpr()
		p.expect(TokenThen, "after if condition")
		body := p.parseBlock(TokenElif, TokenElse, TokenEnd)
		stmt.Branches = append(stmt.Branches, IfBranch{Cond: cond, Body: body})
		if !p.curTokenIs(TokenElif) {
			break
		}
		p.nextToken() // elif
	}

	if p.curTokenIs(TokenElse) {
		p.nextToken()
		stmt.Else = p.parseBlock(TokenEnd)
	}
	p.expect(TokenEnd, "to close if")
	stmt.SpanVal = p.span(start)
	return stmt
}

// parseWhile parses: while cond do block end
func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken() // while
	cond := p.parseExpr()
	p.expect(TokenDo, "after while condition")
	body := p.parseBlock(TokenEnd)
	p.expect(TokenEnd, "to close while")
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	start := p.curToken.Pos
	left := p.parseAnd()
	for p.curTokenIs(TokenOr) {
		p.nextToken()
		right := p.parseAnd()
		left = &BinaryOp{SpanVal: p.span(start), Op: TokenOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	start := p.curToken.Pos
	left := p.parseNot()
	for p.curTokenIs(TokenAnd) {
		p.nextToken()
		right := p.parseNot()
		left = &BinaryOp{SpanVal: p.span(start), Op: TokenAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() Expr {
	if p.curTokenIs(TokenNot) {
		start := p.curToken.Pos
		p.nextToken()
		operand := p.parseNot()
		return &UnaryOp{SpanVal: p.span(start), Op: TokenNot, Operand: operand}
	}
	return p.parseComparison()
}

// parseComparison parses one comparison into a BinaryOp and two or more
// into a CompareChain.
func (p *Parser) parseComparison() Expr {
	start := p.curToken.Pos
	first := p.parseAdditive()
	if !p.curToken.Type.IsComparison() {
		return first
	}

	operands := []Expr{first}
	var ops []TokenType
	for p.curToken.Type.IsComparison() {
		ops = append(ops, p.curToken.Type)
		p.nextToken()
		operands = append(operands, p.parseAdditive())
	}

	if len(ops) == 1 {
		return &BinaryOp{SpanVal: p.span(start), Op: ops[0], Left: operands[0], Right: operands[1]}
	}
	return &CompareChain{SpanVal: p.span(start), Operands: operands, Ops: ops}
}

func (p *Parser) parseAdditive() Expr {
	start := p.curToken.Pos
	left := p.parseMultiplicative()
	for p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseMultiplicative()
		left = &BinaryOp{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	start := p.curToken.Pos
	left := p.parseUnary()
	for p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseUnary()
		left = &BinaryOp{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenNot) {
		start := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		return &UnaryOp{SpanVal: p.span(start), Op: op, Operand: operand}
	}
	return p.parsePostfix()
}

// parsePostfix parses calls and member access: f(a, b).name
func (p *Parser) parsePostfix() Expr {
	start := p.curToken.Pos
	expr := p.parsePrimary()
	for {
		switch {
		case p.curTokenIs(TokenLParen):
			args := p.parseArguments()
			expr = &Call{SpanVal: p.span(start), Callee: expr, Args: args}
		case p.curTokenIs(TokenPeriod):
			p.nextToken()
			name := p.expect(TokenIdentifier, "after '.'")
			expr = &MemberAccess{SpanVal: p.span(start), Object: expr, Name: name.Literal}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArguments() []Expr {
	p.nextToken() // (
	var args []Expr
	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return args
	}
	for {
		args = append(args, p.parseExpr())
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen, "to close argument list")
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	span := MakeSpan(tok.Pos, tok.Pos)

	switch tok.Type {
	case TokenInteger:
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.failf("invalid integer literal %s", tok.Literal)
		}
		p.nextToken()
		return &IntLiteral{SpanVal: span, Value: v}

	case TokenFloat:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.failf("invalid float literal %s", tok.Literal)
		}
		p.nextToken()
		return &FloatLiteral{SpanVal: span, Value: v}

	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: tok.Literal}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: span, Value: tok.Type == TokenTrue}

	case TokenIdentifier:
		p.nextToken()
		return &VariableRef{SpanVal: span, Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		expr := p.parseExpr()
		p.expect(TokenRParen, "to close parenthesized expression")
		return expr
	}

	p.failf("expected expression, got %s", tok.describe())
	return nil
}
