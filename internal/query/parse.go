package query

import (
	"strconv"
	"strings"
)

// Parse rebuilds a query from its rendered form and prepares it for
// evaluation. Parse(q.SQLLike()).SQLLike() == q.SQLLike() for every q.
func Parse(sqlLike string) (*Plan, error) {
	p := &tokenParser{toks: tokenize(sqlLike)}
	q, err := p.parse()
	if err != nil {
		return nil, err
	}
	return newPlan(q), nil
}

// tokenize splits on single spaces only; other whitespace belongs to the
// user strings it appears in.
func tokenize(s string) []string {
	var toks []string
	for _, tok := range strings.Split(s, " ") {
		if tok != "" {
			toks = append(toks, tok)
		}
	}
	return toks
}

type tokenParser struct {
	toks []string
	pos  int
}

func (p *tokenParser) next() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	tok := p.toks[p.pos]
	p.pos++
	return tok, true
}

func (p *tokenParser) operand(what string) (string, error) {
	tok, ok := p.next()
	if !ok {
		return "", malformed(p.pos, "missing %s", what)
	}
	return tok, nil
}

func (p *tokenParser) parse() (*Query, error) {
	q := New()

	for {
		tok, ok := p.next()
		if !ok {
			return q, nil
		}

		switch tok {
		case tokDeviceID, tokKeyPrefix, tokSuggestIndex:
			arg, err := p.operand("hint value")
			if err != nil {
				return nil, err
			}
			v := unescape(arg)
			switch tok {
			case tokDeviceID:
				q.deviceID = &v
			case tokKeyPrefix:
				q.keyPrefix = &v
			default:
				q.suggestIndex = &v
			}

		case tokAsc, tokDesc:
			field, err := p.operand("order field")
			if err != nil {
				return nil, err
			}
			q.orders = append(q.orders, order{field: unescape(field), desc: tok == tokDesc})

		case tokLimit:
			count, err := p.integer("limit count")
			if err != nil {
				return nil, err
			}
			offset, err := p.integer("limit offset")
			if err != nil {
				return nil, err
			}
			q.limit = &limitSpec{count: count, offset: offset}

		default:
			kind, ok := tokenClauses[tok]
			if !ok {
				return nil, malformed(p.pos, "unexpected token %q", tok)
			}
			c, err := p.clause(kind)
			if err != nil {
				return nil, err
			}
			switch kind {
			case clauseBeginGroup:
				q.groupDepth++
			case clauseEndGroup:
				if q.groupDepth > 0 {
					q.groupDepth--
				}
			}
			q.clauses = append(q.clauses, c)
		}
	}
}

func (p *tokenParser) integer(what string) (int, error) {
	tok, err := p.operand(what)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, malformed(p.pos, "%s must be a non-negative integer, got %q", what, tok)
	}
	return n, nil
}

func (p *tokenParser) clause(kind clauseKind) (clause, error) {
	c := clause{kind: kind}

	switch kind {
	case clauseAnd, clauseOr, clauseBeginGroup, clauseEndGroup:
		return c, nil
	}

	field, err := p.operand("field")
	if err != nil {
		return c, err
	}
	c.field = unescape(field)

	switch kind {
	case clauseIsNull, clauseIsNotNull:
		return c, nil

	case clauseLike, clauseNotLike:
		pat, err := p.operand("pattern")
		if err != nil {
			return c, err
		}
		c.pattern = unescape(pat)
		return c, nil

	case clauseIn, clauseNotIn:
		return p.membership(c)
	}

	tag, err := p.operand("type")
	if err != nil {
		return c, err
	}
	tok, err := p.operand("value")
	if err != nil {
		return c, err
	}
	v, ok := parseValue(tag, tok)
	if !ok {
		return c, malformed(p.pos, "bad %s value %q", tag, tok)
	}
	c.value = v
	return c, nil
}

func (p *tokenParser) membership(c clause) (clause, error) {
	tag, err := p.operand("type")
	if err != nil {
		return c, err
	}
	switch tag {
	case typeString, typeInteger, typeLong, typeDouble:
	default:
		return c, malformed(p.pos, "bad list type %q", tag)
	}
	c.typeTag = tag

	if tok, _ := p.next(); tok != tokStart {
		return c, malformed(p.pos, "expected %s", tokStart)
	}

	for {
		tok, ok := p.next()
		if !ok {
			return c, malformed(p.pos, "unterminated value list")
		}
		if tok == tokEnd {
			break
		}
		if tag == typeString {
			c.strings = append(c.strings, unescape(tok))
			continue
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return c, malformed(p.pos, "bad number %q", tok)
		}
		c.numbers = append(c.numbers, f)
	}

	if len(c.strings) == 0 && len(c.numbers) == 0 {
		return c, malformed(p.pos, "empty value list")
	}
	return c, nil
}
