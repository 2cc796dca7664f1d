package pl

import "fmt"

// parser is a recursive-descent, token-level parser with bounded
// lookahead and backtracking, the same "save a cursor, try an
// alternative, restore on failure" discipline as the teacher's
// BaseParser.Backtrack, just over a Token slice instead of a rune
// stream (§4.3).
type parser struct {
	toks []Token
	pos  int
}

// Parse turns a token stream into the top-level declaration list.
func Parse(toks []Token) ([]Node, error) {
	p := &parser{toks: toks}
	var decls []Node
	for !p.check(tokEOF(0)) {
		if p.match(patSeparator(SepSemicolon)) {
			continue
		}
		d, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// ---- cursor plumbing ----

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) check(pattern Token) bool { return p.cur().Matches(pattern) }

func (p *parser) match(pattern Token) bool {
	if p.check(pattern) {
		p.advance()
		return true
	}
	return false
}

// mark/reset implement the backtracking a handful of ambiguous
// productions need (is this a cast or a plain expression, is this a
// declaration or an expression statement).
func (p *parser) mark() int        { return p.pos }
func (p *parser) reset(mark int)   { p.pos = mark }

func (p *parser) expect(pattern Token, what string) (Token, error) {
	if p.check(pattern) {
		return p.advance(), nil
	}
	return Token{}, p.errorf("expected %s, found %v", what, p.cur())
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return NewErrorAt(KindParse, p.cur().Line, fmt.Sprintf(format, args...))
}

// ---- declarations ----

func (p *parser) parseDeclaration() (Node, error) {
	line := p.cur().Line

	switch {
	case p.match(patKeyword(KwNamespace)):
		return p.parseNamespace(line)
	case p.match(patKeyword(KwStruct)):
		return p.parseStruct(line)
	case p.match(patKeyword(KwUnion)):
		return p.parseUnion(line)
	case p.match(patKeyword(KwEnum)):
		return p.parseEnum(line)
	case p.match(patKeyword(KwBitfield)):
		return p.parseBitfield(line)
	case p.match(patKeyword(KwUsing)):
		return p.parseUsing(line)
	case p.match(patKeyword(KwFn)):
		return p.parseFunctionDefinition(line)
	}

	return p.parseStatement()
}

func (p *parser) parseNamespace(line int) (Node, error) {
	var path []string
	name, err := p.expect(patIdentifier(), "namespace name")
	if err != nil {
		return nil, err
	}
	path = append(path, name.Lexeme)
	for p.match(patOperator(OpColonColon)) {
		name, err = p.expect(patIdentifier(), "namespace name")
		if err != nil {
			return nil, err
		}
		path = append(path, name.Lexeme)
	}
	if _, err := p.expect(patSeparator(SepCurlyOpen), "'{'"); err != nil {
		return nil, err
	}
	var body []Node
	for !p.check(patSeparator(SepCurlyClose)) {
		d, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		body = append(body, d)
	}
	if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
		return nil, err
	}
	return &NamespaceNode{base{line}, path, body}, nil
}

func (p *parser) parseMemberList() ([]Node, error) {
	if _, err := p.expect(patSeparator(SepCurlyOpen), "'{'"); err != nil {
		return nil, err
	}
	var members []Node
	for !p.check(patSeparator(SepCurlyClose)) {
		m, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
		return nil, err
	}
	return members, nil
}

func (p *parser) parseStruct(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "struct name")
	if err != nil {
		return nil, err
	}
	parent := ""
	if p.match(patOperator(OpInherit)) {
		pname, err := p.expect(patIdentifier(), "base struct name")
		if err != nil {
			return nil, err
		}
		parent = pname.Lexeme
	}
	members, err := p.parseMemberList()
	if err != nil {
		return nil, err
	}
	p.match(patSeparator(SepSemicolon))
	return &StructNode{base{line}, name.Lexeme, parent, members}, nil
}

func (p *parser) parseUnion(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "union name")
	if err != nil {
		return nil, err
	}
	members, err := p.parseMemberList()
	if err != nil {
		return nil, err
	}
	p.match(patSeparator(SepSemicolon))
	return &UnionNode{base{line}, name.Lexeme, members}, nil
}

func (p *parser) parseEnum(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "enum name")
	if err != nil {
		return nil, err
	}
	underlying := TypeUnsigned32
	if p.match(patOperator(OpInherit)) {
		t, err := p.parseValueTypeToken()
		if err != nil {
			return nil, err
		}
		underlying = t
	}
	if _, err := p.expect(patSeparator(SepCurlyOpen), "'{'"); err != nil {
		return nil, err
	}
	var values []EnumValue
	for !p.check(patSeparator(SepCurlyClose)) {
		vname, err := p.expect(patIdentifier(), "enum member name")
		if err != nil {
			return nil, err
		}
		var expr Node
		if p.match(patOperator(OpAssign)) {
			expr, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		values = append(values, EnumValue{vname.Lexeme, expr})
		if !p.match(patSeparator(SepComma)) {
			break
		}
	}
	if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
		return nil, err
	}
	p.match(patSeparator(SepSemicolon))
	return &EnumNode{base{line}, name.Lexeme, underlying, values}, nil
}

func (p *parser) parseBitfield(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "bitfield name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepCurlyOpen), "'{'"); err != nil {
		return nil, err
	}
	var fields []*BitfieldFieldNode
	for !p.check(patSeparator(SepCurlyClose)) {
		fline := p.cur().Line
		fname, err := p.expect(patIdentifier(), "bitfield field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patOperator(OpInherit), "':'"); err != nil {
			return nil, err
		}
		bits, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
			return nil, err
		}
		fields = append(fields, &BitfieldFieldNode{base{fline}, fname.Lexeme, bits})
	}
	if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
		return nil, err
	}
	p.match(patSeparator(SepSemicolon))
	return &BitfieldNode{base{line}, name.Lexeme, fields}, nil
}

func (p *parser) parseUsing(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "type alias name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patOperator(OpAssign), "'='"); err != nil {
		return nil, err
	}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
		return nil, err
	}
	return &TypeDeclNode{base{line}, name.Lexeme, t}, nil
}

func (p *parser) parseFunctionDefinition(line int) (Node, error) {
	name, err := p.expect(patIdentifier(), "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
		return nil, err
	}
	var params []Param
	variadic := false
	for !p.check(patSeparator(SepRoundClose)) {
		if p.match(patOperator(OpEllipsis)) {
			variadic = true
			break
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		pname, err := p.expect(patIdentifier(), "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, Param{pname.Lexeme, t})
		if !p.match(patSeparator(SepComma)) {
			break
		}
	}
	if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepCurlyOpen), "'{'"); err != nil {
		return nil, err
	}
	var body []Node
	for !p.check(patSeparator(SepCurlyClose)) {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
		return nil, err
	}
	return &FunctionDefinitionNode{base{line}, name.Lexeme, params, variadic, body}, nil
}

// ---- statements ----

func (p *parser) parseStatement() (Node, error) {
	line := p.cur().Line

	switch {
	case p.match(patSeparator(SepCurlyOpen)):
		var body []Node
		for !p.check(patSeparator(SepCurlyClose)) {
			s, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			body = append(body, s)
		}
		if _, err := p.expect(patSeparator(SepCurlyClose), "'}'"); err != nil {
			return nil, err
		}
		return &CompoundNode{base{line}, body}, nil

	case p.match(patKeyword(KwIf)):
		return p.parseIf(line)
	case p.match(patKeyword(KwWhile)):
		return p.parseWhile(line)
	case p.match(patKeyword(KwFor)):
		return p.parseFor(line)
	case p.match(patKeyword(KwReturn)):
		return p.parseReturn(line)
	case p.match(patKeyword(KwBreak)):
		if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
			return nil, err
		}
		return &BreakNode{base{line}}, nil
	case p.match(patKeyword(KwContinue)):
		if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
			return nil, err
		}
		return &ContinueNode{base{line}}, nil
	case p.match(patKeyword(KwStruct)):
		return p.parseStruct(line)
	case p.match(patKeyword(KwUnion)):
		return p.parseUnion(line)
	case p.match(patKeyword(KwEnum)):
		return p.parseEnum(line)
	case p.match(patKeyword(KwBitfield)):
		return p.parseBitfield(line)
	case p.match(patKeyword(KwUsing)):
		return p.parseUsing(line)
	}

	return p.parseDeclOrExprStatement(line)
}

func (p *parser) parseIf(line int) (Node, error) {
	if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
		return nil, err
	}
	then, err := p.parseBlockOrStatement()
	if err != nil {
		return nil, err
	}
	var els []Node
	if p.match(patKeyword(KwElse)) {
		els, err = p.parseBlockOrStatement()
		if err != nil {
			return nil, err
		}
	}
	return &IfNode{base{line}, cond, then, els}, nil
}

func (p *parser) parseBlockOrStatement() ([]Node, error) {
	if p.check(patSeparator(SepCurlyOpen)) {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return s.(*CompoundNode).Body, nil
	}
	s, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return []Node{s}, nil
}

func (p *parser) parseWhile(line int) (Node, error) {
	if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockOrStatement()
	if err != nil {
		return nil, err
	}
	return &WhileNode{base{line}, cond, body}, nil
}

func (p *parser) parseFor(line int) (Node, error) {
	if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
		return nil, err
	}
	var init, cond, post Node
	var err error
	if !p.check(patSeparator(SepSemicolon)) && !p.check(patSeparator(SepComma)) {
		init, err = p.parseDeclOrExprNoSemi()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(patSeparator(SepComma), "','"); err != nil {
		return nil, err
	}
	if !p.check(patSeparator(SepComma)) {
		cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(patSeparator(SepComma), "','"); err != nil {
		return nil, err
	}
	if !p.check(patSeparator(SepRoundClose)) {
		post, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockOrStatement()
	if err != nil {
		return nil, err
	}
	return &ForNode{base{line}, init, cond, post, body}, nil
}

func (p *parser) parseReturn(line int) (Node, error) {
	if p.match(patSeparator(SepSemicolon)) {
		return &ReturnNode{base{line}, nil}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
		return nil, err
	}
	return &ReturnNode{base{line}, expr}, nil
}

// parseDeclOrExprStatement handles the statement forms that start with
// either a type (variable/array/pointer declaration) or an expression
// (assignment, function call). It consumes the trailing ';'.
func (p *parser) parseDeclOrExprStatement(line int) (Node, error) {
	n, err := p.parseDeclOrExprNoSemi()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(patSeparator(SepSemicolon), "';'"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseDeclOrExprNoSemi() (Node, error) {
	if p.looksLikeTypeStart() {
		mark := p.mark()
		n, err := p.tryParseVariableDecl()
		if err == nil {
			return n, nil
		}
		p.reset(mark)
	}
	return p.parseExpression()
}

// looksLikeTypeStart reports whether the current token could begin a
// type reference (builtin value type, `auto`, or an identifier that is
// plausibly a custom type name rather than an lvalue in an expression
// statement). Disambiguation between a declaration and a bare
// expression is resolved by a backtracking trial parse, not here.
func (p *parser) looksLikeTypeStart() bool {
	return p.check(patValueTypeAny()) || p.check(patIdentifier()) ||
		p.check(patKeyword(KwLittleEndian)) || p.check(patKeyword(KwBigEndian))
}

func (p *parser) tryParseVariableDecl() (Node, error) {
	line := p.cur().Line
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}

	if p.match(patOperator(OpStar)) {
		name, err := p.expect(patIdentifier(), "pointer variable name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patOperator(OpInherit), "':'"); err != nil {
			return nil, err
		}
		ptrSize, err := p.parseValueTypeToken()
		if err != nil {
			return nil, err
		}
		offset, attrs, err := p.parseOffsetAndAttributes()
		if err != nil {
			return nil, err
		}
		return &PointerVariableDeclNode{base{line}, name.Lexeme, t, ptrSize, offset, attrs}, nil
	}

	name, err := p.expect(patIdentifier(), "variable name")
	if err != nil {
		return nil, err
	}

	if p.match(patSeparator(SepSquareOpen)) {
		return p.finishArrayDecl(line, name.Lexeme, t)
	}

	offset, attrs, err := p.parseOffsetAndAttributes()
	if err != nil {
		return nil, err
	}
	return &VariableDeclNode{base: base{line}, Name: name.Lexeme, Type: t, Offset: offset, Attributes: attrs}, nil
}

func (p *parser) finishArrayDecl(line int, name string, t TypeRef) (Node, error) {
	n := &ArrayVariableDeclNode{base: base{line}, Name: name, Type: t}

	switch {
	case p.check(patSeparator(SepSquareClose)):
		n.Kind = ArrayZeroTerminated
	case p.match(patKeyword(KwWhile)):
		if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
			return nil, err
		}
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
			return nil, err
		}
		n.Kind = ArrayWhile
		n.Cond = cond
	default:
		size, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		n.Kind = ArrayFixed
		n.Size = size
	}

	if _, err := p.expect(patSeparator(SepSquareClose), "']'"); err != nil {
		return nil, err
	}
	offset, attrs, err := p.parseOffsetAndAttributes()
	if err != nil {
		return nil, err
	}
	n.Offset = offset
	n.Attributes = attrs
	return n, nil
}

func (p *parser) parseOffsetAndAttributes() (Node, []Attribute, error) {
	var offset Node
	if p.match(patOperator(OpAt)) {
		o, err := p.parseExpression()
		if err != nil {
			return nil, nil, err
		}
		offset = o
	}
	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, nil, err
	}
	return offset, attrs, nil
}

func (p *parser) parseAttributes() ([]Attribute, error) {
	var attrs []Attribute
	for p.match(patSeparator(SepAttributeOpen)) {
		for {
			name, err := p.expect(patIdentifier(), "attribute name")
			if err != nil {
				return nil, err
			}
			attr := Attribute{Name: name.Lexeme}
			if p.match(patSeparator(SepRoundOpen)) {
				lit, err := p.expect(patInteger(), "attribute argument")
				if err == nil {
					attr.Arg = lit.Literal.String()
				} else {
					s, serr := p.expect(Token{Kind: TokString}, "attribute argument")
					if serr != nil {
						return nil, serr
					}
					attr.Arg = s.Literal.String()
				}
				if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
					return nil, err
				}
			}
			attrs = append(attrs, attr)
			if !p.match(patSeparator(SepComma)) {
				break
			}
		}
		if _, err := p.expect(patSeparator(SepAttributeClose), "']]'"); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// ---- types ----

func (p *parser) parseValueTypeToken() (TypeTag, error) {
	t, err := p.expect(patValueTypeAny(), "a value type")
	if err != nil {
		return 0, err
	}
	return t.ValueType, nil
}

func (p *parser) parseType() (TypeRef, error) {
	var endian *Endian
	if p.match(patKeyword(KwLittleEndian)) {
		e := EndianLittle
		endian = &e
	} else if p.match(patKeyword(KwBigEndian)) {
		e := EndianBig
		endian = &e
	}

	if p.check(patValueTypeAny()) {
		tag, err := p.parseValueTypeToken()
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Builtin: tag, Endian: endian}, nil
	}

	name, err := p.expect(patIdentifier(), "type name")
	if err != nil {
		return TypeRef{}, err
	}
	path := name.Lexeme
	for p.match(patOperator(OpColonColon)) {
		n, err := p.expect(patIdentifier(), "type name")
		if err != nil {
			return TypeRef{}, err
		}
		path += "::" + n.Lexeme
	}

	var args []TypeRef
	if p.match(patOperator(OpLt)) {
		for {
			a, err := p.parseType()
			if err != nil {
				return TypeRef{}, err
			}
			args = append(args, a)
			if !p.match(patSeparator(SepComma)) {
				break
			}
		}
		if _, err := p.expect(patOperator(OpGt), "'>'"); err != nil {
			return TypeRef{}, err
		}
	}

	return TypeRef{Builtin: TypeCustom, Name: path, Args: args, Endian: endian}, nil
}

// ---- expressions: precedence ladder ----
//
// ternary > logicalOr > logicalXor > logicalAnd > bitOr > bitXor >
// bitAnd > equality > relational > shift > additive > multiplicative >
// cast > unary > postfix > primary (§4.3).

func (p *parser) parseExpression() (Node, error) { return p.parseAssignment() }

func (p *parser) parseAssignment() (Node, error) {
	line := p.cur().Line
	left, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.match(patOperator(OpAssign)) {
		right, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{base{line}, BinAssign, left, right}, nil
	}
	return left, nil
}

func (p *parser) parseTernary() (Node, error) {
	line := p.cur().Line
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.match(patOperator(OpQuestion)) {
		then, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patOperator(OpInherit), "':'"); err != nil {
			return nil, err
		}
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &TernaryNode{base{line}, cond, then, els}, nil
	}
	return cond, nil
}

func (p *parser) binaryLevel(next func() (Node, error), ops map[Operator]BinaryOp) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		line := p.cur().Line
		matched := false
		for opTok, opNode := range ops {
			if p.match(patOperator(opTok)) {
				right, err := next()
				if err != nil {
					return nil, err
				}
				left = &BinaryNode{base{line}, opNode, left, right}
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *parser) parseLogicalOr() (Node, error) {
	return p.binaryLevel(p.parseLogicalXor, map[Operator]BinaryOp{OpOr: BinOr})
}
func (p *parser) parseLogicalXor() (Node, error) {
	return p.binaryLevel(p.parseLogicalAnd, map[Operator]BinaryOp{OpXor: BinXor})
}
func (p *parser) parseLogicalAnd() (Node, error) {
	return p.binaryLevel(p.parseBitOr, map[Operator]BinaryOp{OpAnd: BinAnd})
}
func (p *parser) parseBitOr() (Node, error) {
	return p.binaryLevel(p.parseBitXor, map[Operator]BinaryOp{OpBitOr: BinBitOr})
}
func (p *parser) parseBitXor() (Node, error) {
	return p.binaryLevel(p.parseBitAnd, map[Operator]BinaryOp{OpBitXor: BinBitXor})
}
func (p *parser) parseBitAnd() (Node, error) {
	return p.binaryLevel(p.parseEquality, map[Operator]BinaryOp{OpBitAnd: BinBitAnd})
}
func (p *parser) parseEquality() (Node, error) {
	return p.binaryLevel(p.parseRelational, map[Operator]BinaryOp{OpEq: BinEq, OpNeq: BinNeq})
}
func (p *parser) parseRelational() (Node, error) {
	return p.binaryLevel(p.parseShift, map[Operator]BinaryOp{OpLt: BinLt, OpLe: BinLe, OpGt: BinGt, OpGe: BinGe})
}
func (p *parser) parseShift() (Node, error) {
	return p.binaryLevel(p.parseAdditive, map[Operator]BinaryOp{OpShl: BinShl, OpShr: BinShr})
}
func (p *parser) parseAdditive() (Node, error) {
	return p.binaryLevel(p.parseMultiplicative, map[Operator]BinaryOp{OpPlus: BinAdd, OpMinus: BinSub})
}
func (p *parser) parseMultiplicative() (Node, error) {
	return p.binaryLevel(p.parseCastExpr, map[Operator]BinaryOp{OpStar: BinMul, OpSlash: BinDiv, OpPercent: BinMod})
}

// parseCastExpr handles `type(expr)` casts. Only a builtin value type
// starts a cast; a custom type name followed by '(' parses as a
// function call.
func (p *parser) parseCastExpr() (Node, error) {
	line := p.cur().Line
	if p.check(patValueTypeAny()) {
		mark := p.mark()
		t, err := p.parseType()
		if err == nil && p.check(patSeparator(SepRoundOpen)) {
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
				return nil, err
			}
			return &CastNode{base{line}, t, expr}, nil
		}
		p.reset(mark)
	}
	return p.parseUnary()
}

// parseUnary is also the entry point for postfix member/index access:
// parsePrimary consumes `.name` and `[expr]` chains itself while
// building an RValueNode's path, so there is no separate postfix level.
func (p *parser) parseUnary() (Node, error) {
	line := p.cur().Line
	switch {
	case p.match(patOperator(OpMinus)):
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{base{line}, UnaryNeg, e}, nil
	case p.match(patOperator(OpNot)):
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{base{line}, UnaryNot, e}, nil
	case p.match(patOperator(OpBitNot)):
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{base{line}, UnaryBitNot, e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	line := p.cur().Line

	switch {
	case p.check(patInteger()):
		t := p.advance()
		return &LiteralNode{base{line}, t.Literal}, nil
	case p.check(Token{Kind: TokFloat}):
		t := p.advance()
		return &LiteralNode{base{line}, t.Literal}, nil
	case p.check(Token{Kind: TokString}):
		t := p.advance()
		return &LiteralNode{base{line}, t.Literal}, nil
	case p.check(Token{Kind: TokCharacter}):
		t := p.advance()
		return &LiteralNode{base{line}, t.Literal}, nil
	case p.match(patKeyword(KwTrue)):
		return &LiteralNode{base{line}, NewBoolean(true)}, nil
	case p.match(patKeyword(KwFalse)):
		return &LiteralNode{base{line}, NewBoolean(false)}, nil

	case p.match(patSeparator(SepRoundOpen)):
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
			return nil, err
		}
		return e, nil

	case p.match(patKeyword(KwParent)):
		return p.parsePath(line, "parent")
	case p.match(patKeyword(KwThis)):
		return p.parsePath(line, "this")
	case p.match(patOperator(OpDollar)):
		return &RValueNode{base{line}, []PathSegment{{Name: "$"}}}, nil

	case p.check(patIdentifier()):
		name := p.advance().Lexeme
		if p.check(patSeparator(SepRoundOpen)) {
			return p.finishFunctionCall(line, name)
		}
		if p.check(patOperator(OpColonColon)) {
			path := []string{name}
			qualified := name
			for p.match(patOperator(OpColonColon)) {
				n, err := p.expect(patIdentifier(), "scoped name")
				if err != nil {
					return nil, err
				}
				path = append(path, n.Lexeme)
				qualified += "::" + n.Lexeme
			}
			if p.check(patSeparator(SepRoundOpen)) {
				return p.finishFunctionCall(line, qualified)
			}
			return &ScopeResolutionNode{base{line}, path}, nil
		}
		return p.parsePath(line, name)
	}

	return nil, p.errorf("unexpected token %v in expression", p.cur())
}

func (p *parser) parsePath(line int, first string) (Node, error) {
	path := []PathSegment{{Name: first}}
	for {
		switch {
		case p.match(patOperator(OpDot)):
			n, err := p.expect(patIdentifier(), "member name")
			if err != nil {
				return nil, err
			}
			path = append(path, PathSegment{Name: n.Lexeme})
		case p.match(patSeparator(SepSquareOpen)):
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(patSeparator(SepSquareClose), "']'"); err != nil {
				return nil, err
			}
			path = append(path, PathSegment{Index: idx})
		default:
			return &RValueNode{base{line}, path}, nil
		}
	}
}

func (p *parser) finishFunctionCall(line int, name string) (Node, error) {
	if _, err := p.expect(patSeparator(SepRoundOpen), "'('"); err != nil {
		return nil, err
	}
	var args []Node
	for !p.check(patSeparator(SepRoundClose)) {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.match(patSeparator(SepComma)) {
			break
		}
	}
	if _, err := p.expect(patSeparator(SepRoundClose), "')'"); err != nil {
		return nil, err
	}
	return &FunctionCallNode{base{line}, name, args}, nil
}
