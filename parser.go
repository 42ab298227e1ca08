package ember

import (
	"strconv"
	"strings"
)

// precedence orders binary operators from loosest to tightest
// binding, the table a Pratt parser consults to decide whether to
// keep consuming the right-hand side of an expression.
type precedence int

const (
	_ precedence = iota
	PrecLowest
	PrecAssign   // = += -= ...
	PrecTernary  // ?:
	PrecLogicalOr
	PrecLogicalAnd
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecEquality // == !=
	PrecCompare  // < > <= >=
	PrecShift    // << >>
	PrecAdditive // + -
	PrecMultiplicative // * / %
	PrecPrefix   // -x !x ~x
	PrecCall     // fn(...) arr[i] obj.prop
)

var precedences = map[Kind]precedence{
	ASSIGN: PrecAssign, PLUS_ASSIGN: PrecAssign, MINUS_ASSIGN: PrecAssign,
	ASTERISK_ASSIGN: PrecAssign, SLASH_ASSIGN: PrecAssign, PERCENT_ASSIGN: PrecAssign,
	BIT_AND_ASSIGN: PrecAssign, BIT_OR_ASSIGN: PrecAssign, BIT_XOR_ASSIGN: PrecAssign,
	LSHIFT_ASSIGN: PrecAssign, RSHIFT_ASSIGN: PrecAssign,

	QUESTION: PrecTernary,
	OR:       PrecLogicalOr,
	AND:      PrecLogicalAnd,
	BIT_OR:   PrecBitOr,
	BIT_XOR:  PrecBitXor,
	BIT_AND:  PrecBitAnd,
	EQ:       PrecEquality, NOT_EQ: PrecEquality,
	LT: PrecCompare, GT: PrecCompare, LT_EQ: PrecCompare, GT_EQ: PrecCompare,
	LSHIFT: PrecShift, RSHIFT: PrecShift,
	PLUS: PrecAdditive, MINUS: PrecAdditive,
	ASTERISK: PrecMultiplicative, SLASH: PrecMultiplicative, PERCENT: PrecMultiplicative,
	LPAREN: PrecCall, LBRACKET: PrecCall, DOT: PrecCall,
	PLUS_PLUS: PrecCall, MINUS_MINUS: PrecCall,
}

// compoundOps maps a compound-assignment token to the plain infix
// operator it desugars into: `x += y` becomes `Assign(x, Infix("+",
// x, y))` entirely at parse time, so the compiler only ever has to
// know about plain assignment.
var compoundOps = map[Kind]string{
	PLUS_ASSIGN: "+", MINUS_ASSIGN: "-", ASTERISK_ASSIGN: "*", SLASH_ASSIGN: "/",
	PERCENT_ASSIGN: "%", BIT_AND_ASSIGN: "&", BIT_OR_ASSIGN: "|", BIT_XOR_ASSIGN: "^",
	LSHIFT_ASSIGN: "<<", RSHIFT_ASSIGN: ">>",
}

const maxParserDepth = 256

// Parser is a recursive-descent statement parser combined with a
// Pratt expression parser; it consumes tokens directly from a Lexer,
// so re-entrant template-string lexing (see lexer.go) composes
// naturally with expression parsing.
type Parser struct {
	lex *Lexer

	cur  Token
	peek Token

	errs *ErrorList

	depth int
}

func NewParser(lex *Lexer) *Parser {
	p := &Parser{lex: lex, errs: &ErrorList{}}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) curIs(k Kind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k Kind) bool { return p.peek.Kind == k }

func (p *Parser) expect(k Kind) bool {
	if p.peekIs(k) {
		p.next()
		return true
	}
	p.errorf(p.peek.Pos, "expected next token to be %s, got %s instead", k, p.peek.Kind)
	return false
}

func (p *Parser) errorf(pos Position, format string, args ...interface{}) {
	p.errs.Add(newParseError(pos, format, args...))
}

func (p *Parser) peekPrecedence() precedence {
	if pr, ok := precedences[p.peek.Kind]; ok {
		return pr
	}
	return PrecLowest
}

func (p *Parser) curPrecedence() precedence {
	if pr, ok := precedences[p.cur.Kind]; ok {
		return pr
	}
	return PrecLowest
}

// Errors exposes every parse error accumulated so far, in case the
// caller wants to report more than the first one.
func (p *Parser) Errors() *ErrorList { return p.errs }

// ParseProgram consumes the whole token stream and returns the
// top-level statement list, or the first error encountered.
func (p *Parser) ParseProgram() ([]Statement, error) {
	var program []Statement
	for !p.curIs(EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			program = append(program, stmt)
		}
		p.next()
	}
	return program, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch p.cur.Kind {
	case CONST, VAR:
		return p.parseDefineStatement()
	case IF:
		return p.parseIfStatement()
	case RETURN:
		return p.parseReturnStatement()
	case WHILE:
		return p.parseWhileStatement()
	case FOR:
		return p.parseForOrForeachStatement()
	case BREAK:
		stmt := &BreakStatement{pos: p.cur.Pos}
		p.skipSemicolon()
		return stmt, nil
	case CONTINUE:
		stmt := &ContinueStatement{pos: p.cur.Pos}
		p.skipSemicolon()
		return stmt, nil
	case LBRACE:
		// `{ key: ...` opens a map literal used as an expression
		// statement; any other `{` opens a block.
		if p.peekIs(IDENT) || p.peekIs(STRING) {
			save := p.snapshotParser()
			p.next()
			isMap := p.peekIs(COLON)
			p.restoreParser(save)
			if isMap {
				return p.parseExpressionStatement()
			}
		}
		return p.parseBlockStatement()
	case IMPORT:
		return p.parseImportStatement()
	case RECOVER:
		return p.parseRecoverStatement()
	default:
		return p.parseExpressionStatement()
	}
}

// skipSemicolon consumes a single trailing semicolon, if present;
// semicolons are optional statement terminators.
func (p *Parser) skipSemicolon() {
	if p.peekIs(SEMICOLON) {
		p.next()
	}
}

func (p *Parser) parseDefineStatement() (Statement, error) {
	pos := p.cur.Pos
	assignable := p.curIs(VAR)
	if !p.expect(IDENT) {
		return nil, p.firstError()
	}
	name := &Identifier{Value: p.cur.Literal, pos: p.cur.Pos}
	if !p.expect(ASSIGN) {
		return nil, p.firstError()
	}
	p.next()
	value, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	if fn, ok := value.(*FunctionLiteral); ok && fn.Name == "" {
		fn.Name = name.Value
	}
	p.skipSemicolon()
	return &DefineStatement{Name: name, Value: value, Assignable: assignable, pos: pos}, nil
}

func (p *Parser) parseIfStatement() (Statement, error) {
	pos := p.cur.Pos
	stmt := &IfStatement{pos: pos}
	for {
		if !p.expect(LPAREN) {
			return nil, p.firstError()
		}
		p.next()
		test, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		if !p.expect(RPAREN) {
			return nil, p.firstError()
		}
		if !p.expect(LBRACE) {
			return nil, p.firstError()
		}
		block, err := p.parseBlockStatement()
		if err != nil {
			return nil, err
		}
		stmt.Cases = append(stmt.Cases, IfCase{Test: test, Consequence: block.(*BlockStatement)})

		if p.peekIs(ELSE) {
			p.next()
			if p.peekIs(IF) {
				p.next()
				continue
			}
			if !p.expect(LBRACE) {
				return nil, p.firstError()
			}
			elseBlock, err := p.parseBlockStatement()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBlock.(*BlockStatement)
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseReturnStatement() (Statement, error) {
	pos := p.cur.Pos
	if p.peekIs(SEMICOLON) || p.peekIs(RBRACE) {
		p.skipSemicolon()
		return &ReturnStatement{pos: pos}, nil
	}
	p.next()
	value, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	p.skipSemicolon()
	return &ReturnStatement{Value: value, pos: pos}, nil
}

func (p *Parser) parseWhileStatement() (Statement, error) {
	pos := p.cur.Pos
	if !p.expect(LPAREN) {
		return nil, p.firstError()
	}
	p.next()
	test, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	if !p.expect(RPAREN) {
		return nil, p.firstError()
	}
	if !p.expect(LBRACE) {
		return nil, p.firstError()
	}
	body, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStatement{Test: test, Body: body.(*BlockStatement), pos: pos}, nil
}

// parseForOrForeachStatement disambiguates `for (x in xs) {}` from a
// C-style `for (init; test; update) {}` by peeking past the first
// identifier for the `in` keyword.
func (p *Parser) parseForOrForeachStatement() (Statement, error) {
	pos := p.cur.Pos
	if !p.expect(LPAREN) {
		return nil, p.firstError()
	}

	if p.peekIs(IDENT) {
		save := p.snapshotParser()
		p.next()
		ident := &Identifier{Value: p.cur.Literal, pos: p.cur.Pos}
		if p.peekIs(IN) {
			p.next()
			p.next()
			source, err := p.parseExpression(PrecLowest)
			if err != nil {
				return nil, err
			}
			if !p.expect(RPAREN) {
				return nil, p.firstError()
			}
			if !p.expect(LBRACE) {
				return nil, p.firstError()
			}
			body, err := p.parseBlockStatement()
			if err != nil {
				return nil, err
			}
			return &ForeachStatement{Iterator: ident, Source: source, Body: body.(*BlockStatement), pos: pos}, nil
		}
		p.restoreParser(save)
	}

	stmt := &ForStatement{pos: pos}
	p.next()
	if !p.curIs(SEMICOLON) {
		init, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Init = init
	}
	if !p.curIs(SEMICOLON) {
		if !p.expect(SEMICOLON) {
			return nil, p.firstError()
		}
	}
	p.next()
	if !p.curIs(SEMICOLON) {
		test, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		stmt.Test = test
		if !p.expect(SEMICOLON) {
			return nil, p.firstError()
		}
	}
	p.next()
	if !p.curIs(RPAREN) {
		update, err := p.parseExpressionStatementNoSemicolon()
		if err != nil {
			return nil, err
		}
		stmt.Update = update
		if !p.expect(RPAREN) {
			return nil, p.firstError()
		}
	}
	if !p.expect(LBRACE) {
		return nil, p.firstError()
	}
	body, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}
	stmt.Body = body.(*BlockStatement)
	return stmt, nil
}

func (p *Parser) parseExpressionStatementNoSemicolon() (Statement, error) {
	pos := p.cur.Pos
	expr, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	return &ExpressionStatement{Value: expr, pos: pos}, nil
}

func (p *Parser) parseBlockStatement() (Statement, error) {
	pos := p.cur.Pos
	block := &BlockStatement{pos: pos}
	p.next()
	for !p.curIs(RBRACE) && !p.curIs(EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.next()
	}
	if !p.curIs(RBRACE) {
		p.errorf(p.cur.Pos, "expected closing '}', got %s", p.cur.Kind)
		return nil, p.firstError()
	}
	return block, nil
}

func (p *Parser) parseImportStatement() (Statement, error) {
	pos := p.cur.Pos
	if !p.expect(STRING) {
		return nil, p.firstError()
	}
	stmt := &ImportStatement{Path: p.cur.Literal, pos: pos}
	p.skipSemicolon()
	return stmt, nil
}

func (p *Parser) parseRecoverStatement() (Statement, error) {
	pos := p.cur.Pos
	if !p.expect(LPAREN) {
		return nil, p.firstError()
	}
	if !p.expect(IDENT) {
		return nil, p.firstError()
	}
	errName := p.cur.Literal
	if !p.expect(RPAREN) {
		return nil, p.firstError()
	}
	if !p.expect(LBRACE) {
		return nil, p.firstError()
	}
	body, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}
	return &RecoverStatement{ErrName: errName, Body: body.(*BlockStatement), pos: pos}, nil
}

func (p *Parser) parseExpressionStatement() (Statement, error) {
	pos := p.cur.Pos
	expr, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	p.skipSemicolon()
	return &ExpressionStatement{Value: expr, pos: pos}, nil
}

// parseExpression is the Pratt parser's core loop: parse one prefix
// expression, then keep folding infix/postfix operators into it as
// long as the upcoming operator binds tighter than minPrec.
func (p *Parser) parseExpression(minPrec precedence) (Expression, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxParserDepth {
		p.errorf(p.cur.Pos, "expression nested too deeply")
		return nil, p.firstError()
	}

	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for !p.peekIs(SEMICOLON) && minPrec < p.peekPrecedence() {
		switch p.peek.Kind {
		case PLUS, MINUS, ASTERISK, SLASH, PERCENT, BIT_AND, BIT_OR, BIT_XOR,
			LSHIFT, RSHIFT, EQ, NOT_EQ, LT, GT, LT_EQ, GT_EQ:
			p.next()
			left, err = p.parseInfix(left)
		case AND, OR:
			p.next()
			left, err = p.parseLogical(left)
		case ASSIGN:
			p.next()
			left, err = p.parseAssign(left)
		case PLUS_ASSIGN, MINUS_ASSIGN, ASTERISK_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN,
			BIT_AND_ASSIGN, BIT_OR_ASSIGN, BIT_XOR_ASSIGN, LSHIFT_ASSIGN, RSHIFT_ASSIGN:
			p.next()
			left, err = p.parseCompoundAssign(left)
		case QUESTION:
			p.next()
			left, err = p.parseTernary(left)
		case LPAREN:
			p.next()
			left, err = p.parseCall(left)
		case LBRACKET:
			p.next()
			left, err = p.parseIndex(left)
		case DOT:
			p.next()
			left, err = p.parseDotAccess(left)
		case PLUS_PLUS, MINUS_MINUS:
			p.next()
			left = p.parsePostfix(left)
		default:
			return left, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parsePrefix() (Expression, error) {
	switch p.cur.Kind {
	case IDENT:
		return &Identifier{Value: p.cur.Literal, pos: p.cur.Pos}, nil
	case NUMBER:
		return p.parseNumberLiteral()
	case STRING:
		return &StringLiteral{Value: p.cur.Literal, pos: p.cur.Pos}, nil
	case TEMPLATE_STRING:
		return p.parseTemplateString()
	case TRUE, FALSE:
		return &BoolLiteral{Value: p.curIs(TRUE), pos: p.cur.Pos}, nil
	case NULL:
		return &NullLiteral{pos: p.cur.Pos}, nil
	case BANG:
		return p.parsePrefixExpr("!")
	case MINUS:
		return p.parsePrefixExpr("-")
	case BIT_NOT:
		return p.parsePrefixExpr("~")
	case LPAREN:
		return p.parseGroupedExpr()
	case LBRACKET:
		return p.parseArrayLiteral()
	case LBRACE:
		return p.parseMapLiteral()
	case FUNCTION:
		return p.parseFunctionLiteral()
	case PLUS_PLUS, MINUS_MINUS:
		return p.parsePrefixIncDec()
	default:
		p.errorf(p.cur.Pos, "no prefix parse function for %s found", p.cur.Kind)
		return nil, p.firstError()
	}
}

func (p *Parser) parseNumberLiteral() (Expression, error) {
	lit := p.cur.Literal
	pos := p.cur.Pos
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		n, err := strconv.ParseInt(lit[2:], 16, 64)
		if err != nil {
			p.errorf(pos, "could not parse %q as a hex number", lit)
			return nil, p.firstError()
		}
		return &NumberLiteral{Value: float64(n), pos: pos}, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.errorf(pos, "could not parse %q as a number", lit)
		return nil, p.firstError()
	}
	return &NumberLiteral{Value: f, pos: pos}, nil
}

// parseTemplateString assembles a sequence of plain-text fragments
// and embedded expressions into a single expression tree: each
// embedded `${expr}` becomes an InfixExpression("+", acc, expr) chain
// the compiler (and, folded further, the optimiser) treats as string
// concatenation. parsePrefix only calls this when p.cur is a
// TEMPLATE_STRING token, meaning at least one "${" follows.
func (p *Parser) parseTemplateString() (Expression, error) {
	pos := p.cur.Pos
	var acc Expression = &StringLiteral{Value: p.cur.Literal, pos: pos}

	for {
		p.next() // move onto the embedded expression's first token
		expr, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		acc = &InfixExpression{Operator: "+", Left: acc, Right: expr, pos: pos}

		// The "}" closing the interpolation must be sitting in peek,
		// already lexed, which leaves the lexer's cursor exactly at
		// the first byte of the next fragment. Consuming it through
		// p.next() would over-read one token in expression mode and
		// swallow part of the string, so hand control straight back
		// to the lexer instead.
		if !p.peekIs(RBRACE) {
			p.errorf(p.peek.Pos, "expected '}' to close template interpolation, got %s", p.peek.Kind)
			return nil, p.firstError()
		}
		cont := p.lex.ContinueTemplateString()
		acc = &InfixExpression{Operator: "+", Left: acc, Right: &StringLiteral{Value: cont.Literal, pos: cont.Pos}, pos: pos}

		// Resync the parser's two-token lookahead with the lexer: cur
		// becomes the fragment just consumed, peek the first token
		// after it (the next embedded expression's first token, or
		// whatever follows the closing backtick).
		p.cur = cont
		p.peek = p.lex.NextToken()
		if cont.Kind == STRING {
			return acc, nil
		}
	}
}

func (p *Parser) parsePrefixExpr(op string) (Expression, error) {
	pos := p.cur.Pos
	p.next()
	right, err := p.parseExpression(PrecPrefix)
	if err != nil {
		return nil, err
	}
	return &PrefixExpression{Operator: op, Right: right, pos: pos}, nil
}

// parsePrefixIncDec lowers `++x` to `Assign(x, x+1)`, reusing the
// same desugaring the postfix form gets, only without IsPostfix set
// (so the assignment's own value, the *new* value, is what's used).
func (p *Parser) parsePrefixIncDec() (Expression, error) {
	pos := p.cur.Pos
	op := "+"
	if p.curIs(MINUS_MINUS) {
		op = "-"
	}
	p.next()
	target, err := p.parseExpression(PrecPrefix)
	if err != nil {
		return nil, err
	}
	delta := &InfixExpression{Operator: op, Left: target, Right: &NumberLiteral{Value: 1, pos: pos}, pos: pos}
	return &AssignExpression{Dest: target, Value: delta, pos: pos}, nil
}

func (p *Parser) parseGroupedExpr() (Expression, error) {
	p.next()
	expr, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	if !p.expect(RPAREN) {
		return nil, p.firstError()
	}
	return expr, nil
}

func (p *Parser) parseArrayLiteral() (Expression, error) {
	pos := p.cur.Pos
	arr := &ArrayLiteral{pos: pos}
	if p.peekIs(RBRACKET) {
		p.next()
		return arr, nil
	}
	p.next()
	for {
		el, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, el)
		if p.peekIs(COMMA) {
			p.next()
			p.next()
			continue
		}
		break
	}
	if !p.expect(RBRACKET) {
		return nil, p.firstError()
	}
	return arr, nil
}

func (p *Parser) parseMapLiteral() (Expression, error) {
	pos := p.cur.Pos
	m := &MapLiteral{pos: pos}
	if p.peekIs(RBRACE) {
		p.next()
		return m, nil
	}
	p.next()
	for {
		var key Expression
		var err error
		if p.curIs(IDENT) && p.peekIs(COLON) {
			key = &StringLiteral{Value: p.cur.Literal, pos: p.cur.Pos}
		} else {
			key, err = p.parseExpression(PrecLowest)
			if err != nil {
				return nil, err
			}
		}
		if !p.expect(COLON) {
			return nil, p.firstError()
		}
		p.next()
		value, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, value)
		if p.peekIs(COMMA) {
			p.next()
			p.next()
			continue
		}
		break
	}
	if !p.expect(RBRACE) {
		return nil, p.firstError()
	}
	return m, nil
}

func (p *Parser) parseFunctionLiteral() (Expression, error) {
	pos := p.cur.Pos
	fn := &FunctionLiteral{pos: pos}
	if p.peekIs(IDENT) {
		p.next()
		fn.Name = p.cur.Literal
	}
	if !p.expect(LPAREN) {
		return nil, p.firstError()
	}
	params, err := p.parseFunctionParams()
	if err != nil {
		return nil, err
	}
	fn.Params = params
	if !p.expect(LBRACE) {
		return nil, p.firstError()
	}
	body, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}
	fn.Body = body.(*BlockStatement)
	return fn, nil
}

func (p *Parser) parseFunctionParams() ([]*Identifier, error) {
	var params []*Identifier
	if p.peekIs(RPAREN) {
		p.next()
		return params, nil
	}
	p.next()
	params = append(params, &Identifier{Value: p.cur.Literal, pos: p.cur.Pos})
	for p.peekIs(COMMA) {
		p.next()
		p.next()
		params = append(params, &Identifier{Value: p.cur.Literal, pos: p.cur.Pos})
	}
	if !p.expect(RPAREN) {
		return nil, p.firstError()
	}
	return params, nil
}

func (p *Parser) parseInfix(left Expression) (Expression, error) {
	op := p.cur.Kind.String()
	pos := p.cur.Pos
	prec := p.curPrecedence()
	p.next()
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	return &InfixExpression{Operator: op, Left: left, Right: right, pos: pos}, nil
}

func (p *Parser) parseLogical(left Expression) (Expression, error) {
	op := p.cur.Kind.String()
	pos := p.cur.Pos
	prec := p.curPrecedence()
	p.next()
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	return &LogicalExpression{Operator: op, Left: left, Right: right, pos: pos}, nil
}

func (p *Parser) parseAssign(left Expression) (Expression, error) {
	pos := p.cur.Pos
	p.next()
	value, err := p.parseExpression(PrecAssign - 1) // right-associative
	if err != nil {
		return nil, err
	}
	return &AssignExpression{Dest: left, Value: value, pos: pos}, nil
}

// parseCompoundAssign desugars `x op= y` into `Assign(x, Infix(op, x,
// y))`, the form named in the supplemented-features notes: the
// compiler never sees a compound-assignment node at all.
func (p *Parser) parseCompoundAssign(left Expression) (Expression, error) {
	op := compoundOps[p.cur.Kind]
	pos := p.cur.Pos
	p.next()
	rhs, err := p.parseExpression(PrecAssign - 1)
	if err != nil {
		return nil, err
	}
	combined := &InfixExpression{Operator: op, Left: left, Right: rhs, pos: pos}
	return &AssignExpression{Dest: left, Value: combined, pos: pos}, nil
}

func (p *Parser) parseTernary(test Expression) (Expression, error) {
	pos := p.cur.Pos
	p.next()
	ifTrue, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	if !p.expect(COLON) {
		return nil, p.firstError()
	}
	p.next()
	ifFalse, err := p.parseExpression(PrecTernary)
	if err != nil {
		return nil, err
	}
	return &TernaryExpression{Test: test, IfTrue: ifTrue, IfFalse: ifFalse, pos: pos}, nil
}

func (p *Parser) parseCall(fn Expression) (Expression, error) {
	pos := p.cur.Pos
	args, err := p.parseCallArgs()
	if err != nil {
		return nil, err
	}
	return &CallExpression{Function: fn, Args: args, pos: pos}, nil
}

func (p *Parser) parseCallArgs() ([]Expression, error) {
	var args []Expression
	if p.peekIs(RPAREN) {
		p.next()
		return args, nil
	}
	p.next()
	for {
		arg, err := p.parseExpression(PrecLowest)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peekIs(COMMA) {
			p.next()
			p.next()
			continue
		}
		break
	}
	if !p.expect(RPAREN) {
		return nil, p.firstError()
	}
	return args, nil
}

// parseDotAccess desugars `obj.field` to `obj["field"]` at parse
// time, so the compiler and VM only ever deal with IndexExpression.
func (p *Parser) parseDotAccess(left Expression) (Expression, error) {
	pos := p.cur.Pos
	if !p.expect(IDENT) {
		return nil, p.firstError()
	}
	key := &StringLiteral{Value: p.cur.Literal, pos: p.cur.Pos}
	return &IndexExpression{Left: left, Index: key, pos: pos}, nil
}

func (p *Parser) parseIndex(left Expression) (Expression, error) {
	pos := p.cur.Pos
	p.next()
	index, err := p.parseExpression(PrecLowest)
	if err != nil {
		return nil, err
	}
	if !p.expect(RBRACKET) {
		return nil, p.firstError()
	}
	return &IndexExpression{Left: left, Index: index, pos: pos}, nil
}

// parsePostfix lowers `x++`/`x--` to `Assign(x, x+1, IsPostfix=true)`:
// the VM evaluates the assignment but leaves the pre-increment value
// on the stack for the surrounding expression to read.
func (p *Parser) parsePostfix(left Expression) Expression {
	pos := p.cur.Pos
	op := "+"
	if p.curIs(MINUS_MINUS) {
		op = "-"
	}
	delta := &InfixExpression{Operator: op, Left: left, Right: &NumberLiteral{Value: 1, pos: pos}, pos: pos}
	return &AssignExpression{Dest: left, Value: delta, IsPostfix: true, pos: pos}
}

func (p *Parser) firstError() error {
	if err := p.errs.First(); err != nil {
		return err
	}
	return newParseError(p.cur.Pos, "unknown parse error")
}

type parserSnapshot struct {
	lex  lexerState
	cur  Token
	peek Token
}

func (p *Parser) snapshotParser() parserSnapshot {
	return parserSnapshot{lex: p.lex.snapshot(), cur: p.cur, peek: p.peek}
}

func (p *Parser) restoreParser(s parserSnapshot) {
	p.lex.restore(s.lex)
	p.cur = s.cur
	p.peek = s.peek
}
