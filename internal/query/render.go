package query

import (
	"strconv"
	"strings"
)

// Keywords of the rendered form. User strings never start with a bare keyword
// because escape rewrites every '^' they contain.
const (
	tokEqual        = "^EQUAL"
	tokNotEqual     = "^NOT_EQUAL"
	tokGreater      = "^GREATER"
	tokLess         = "^LESS"
	tokGreaterEqual = "^GREATER_EQUAL"
	tokLessEqual    = "^LESS_EQUAL"
	tokIsNull       = "^IS_NULL"
	tokIsNotNull    = "^IS_NOT_NULL"
	tokLike         = "^LIKE"
	tokNotLike      = "^NOT_LIKE"
	tokIn           = "^IN"
	tokNotIn        = "^NOT_IN"
	tokAnd          = "^AND"
	tokOr           = "^OR"
	tokBeginGroup   = "^BEGIN_GROUP"
	tokEndGroup     = "^END_GROUP"
	tokAsc          = "^ASC"
	tokDesc         = "^DESC"
	tokLimit        = "^LIMIT"
	tokKeyPrefix    = "^KEY_PREFIX"
	tokSuggestIndex = "^SUGGEST_INDEX"
	tokDeviceID     = "^DEVICE_ID"
	tokStart        = "^START"
	tokEnd          = "^END"
	tokEmptyString  = "^EMPTY_STRING"

	typeDouble  = "DOUBLE"
	typeInteger = "INTEGER"
	typeLong    = "LONG"
	typeString  = "STRING"
	typeBool    = "BOOL"

	valueTrue  = "true"
	valueFalse = "false"
)

var clauseTokens = map[clauseKind]string{
	clauseEqual:        tokEqual,
	clauseNotEqual:     tokNotEqual,
	clauseGreater:      tokGreater,
	clauseLess:         tokLess,
	clauseGreaterEqual: tokGreaterEqual,
	clauseLessEqual:    tokLessEqual,
	clauseIsNull:       tokIsNull,
	clauseIsNotNull:    tokIsNotNull,
	clauseLike:         tokLike,
	clauseNotLike:      tokNotLike,
	clauseIn:           tokIn,
	clauseNotIn:        tokNotIn,
	clauseAnd:          tokAnd,
	clauseOr:           tokOr,
	clauseBeginGroup:   tokBeginGroup,
	clauseEndGroup:     tokEndGroup,
}

var tokenClauses = func() map[string]clauseKind {
	m := make(map[string]clauseKind, len(clauseTokens))
	for k, tok := range clauseTokens {
		m[tok] = k
	}
	return m
}()

// escape makes s a single token: '^' becomes "(^)", ' ' becomes "^^".
func escape(s string) string {
	if s == "" {
		return tokEmptyString
	}
	s = strings.ReplaceAll(s, "^", "(^)")
	return strings.ReplaceAll(s, " ", "^^")
}

func unescape(tok string) string {
	if tok == tokEmptyString {
		return ""
	}
	s := strings.ReplaceAll(tok, "^^", " ")
	return strings.ReplaceAll(s, "(^)", "^")
}

func render(q *Query) string {
	var toks []string

	if q.deviceID != nil {
		toks = append(toks, tokDeviceID, escape(*q.deviceID))
	}
	if q.keyPrefix != nil {
		toks = append(toks, tokKeyPrefix, escape(*q.keyPrefix))
	}
	if q.suggestIndex != nil {
		toks = append(toks, tokSuggestIndex, escape(*q.suggestIndex))
	}

	for _, c := range q.clauses {
		toks = c.appendTokens(toks)
	}

	for _, o := range q.orders {
		if o.desc {
			toks = append(toks, tokDesc, escape(o.field))
		} else {
			toks = append(toks, tokAsc, escape(o.field))
		}
	}

	if q.limit != nil {
		toks = append(toks, tokLimit, strconv.Itoa(q.limit.count), strconv.Itoa(q.limit.offset))
	}

	return strings.Join(toks, " ")
}

func (c clause) appendTokens(toks []string) []string {
	toks = append(toks, clauseTokens[c.kind])

	switch c.kind {
	case clauseEqual, clauseNotEqual, clauseGreater, clauseLess, clauseGreaterEqual, clauseLessEqual:
		toks = append(toks, escape(c.field), c.value.typeTag(), c.value.token())
	case clauseIsNull, clauseIsNotNull:
		toks = append(toks, escape(c.field))
	case clauseLike, clauseNotLike:
		toks = append(toks, escape(c.field), escape(c.pattern))
	case clauseIn, clauseNotIn:
		toks = append(toks, escape(c.field), c.typeTag, tokStart)
		if c.typeTag == typeString {
			for _, s := range c.strings {
				toks = append(toks, escape(s))
			}
		} else {
			for _, f := range c.numbers {
				toks = append(toks, formatNumber(f))
			}
		}
		toks = append(toks, tokEnd)
	}

	return toks
}
