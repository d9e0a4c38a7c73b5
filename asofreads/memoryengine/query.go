package memoryengine

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

// ErrUnsupportedQuery is returned for statements outside the engine's minimal
// read grammar.
var ErrUnsupportedQuery = errors.New("query not supported by the in-memory engine")

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokStar
	tokComma
	tokEquals
	tokString
	tokPlaceholder
)

type token struct {
	kind tokenKind
	text string
}

// readQuery is one parsed statement of the minimal grammar:
// SELECT cols FROM table [WHERE col = value] [ORDER BY col [ASC|DESC]].
type readQuery struct {
	table     string
	columns   []string // nil means *
	where     *wherePredicate
	orderBy   string
	orderDesc bool
}

type wherePredicate struct {
	column      string
	literal     string
	placeholder int // 1-based; 0 means literal
}

func tokenize(sql string) ([]token, error) {
	var tokens []token
	rest := sql

	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return tokens, nil
		}

		switch c := rest[0]; {
		case c == '*':
			tokens = append(tokens, token{kind: tokStar})
			rest = rest[1:]

		case c == ',':
			tokens = append(tokens, token{kind: tokComma})
			rest = rest[1:]

		case c == '=':
			tokens = append(tokens, token{kind: tokEquals})
			rest = rest[1:]

		case c == '\'':
			end := strings.IndexByte(rest[1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrUnsupportedQuery)
			}
			tokens = append(tokens, token{kind: tokString, text: rest[1 : 1+end]})
			rest = rest[end+2:]

		case c == '$':
			i := 1
			for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
				i++
			}
			if i == 1 {
				return nil, fmt.Errorf("%w: bare $ without placeholder number", ErrUnsupportedQuery)
			}
			tokens = append(tokens, token{kind: tokPlaceholder, text: rest[1:i]})
			rest = rest[i:]

		case c == '_' || unicode.IsLetter(rune(c)):
			i := 1
			for i < len(rest) && (rest[i] == '_' || unicode.IsLetter(rune(rest[i])) || unicode.IsDigit(rune(rest[i]))) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: rest[:i]})
			rest = rest[i:]

		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrUnsupportedQuery, c)
		}
	}
}

// parseReadQuery parses one statement of the minimal read grammar.
func parseReadQuery(sql string) (readQuery, error) {
	var empty readQuery

	tokens, lexErr := tokenize(sql)
	if lexErr != nil {
		return empty, lexErr
	}

	p := &parser{tokens: tokens}

	if !p.acceptKeyword("select") {
		return empty, fmt.Errorf("%w: expected SELECT", ErrUnsupportedQuery)
	}

	query := readQuery{}

	if p.accept(tokStar) {
		query.columns = nil
	} else {
		for {
			column, ok := p.acceptIdent()
			if !ok {
				return empty, fmt.Errorf("%w: expected column name", ErrUnsupportedQuery)
			}
			query.columns = append(query.columns, column)

			if !p.accept(tokComma) {
				break
			}
		}
	}

	if !p.acceptKeyword("from") {
		return empty, fmt.Errorf("%w: expected FROM", ErrUnsupportedQuery)
	}

	table, ok := p.acceptIdent()
	if !ok {
		return empty, fmt.Errorf("%w: expected table name", ErrUnsupportedQuery)
	}
	query.table = table

	if p.acceptKeyword("where") {
		where, whereErr := p.parseWhere()
		if whereErr != nil {
			return empty, whereErr
		}
		query.where = where
	}

	if p.acceptKeyword("order") {
		if !p.acceptKeyword("by") {
			return empty, fmt.Errorf("%w: expected BY after ORDER", ErrUnsupportedQuery)
		}

		column, okOrder := p.acceptIdent()
		if !okOrder {
			return empty, fmt.Errorf("%w: expected ORDER BY column", ErrUnsupportedQuery)
		}
		query.orderBy = column

		if p.acceptKeyword("desc") {
			query.orderDesc = true
		} else {
			p.acceptKeyword("asc")
		}
	}

	if !p.done() {
		return empty, fmt.Errorf("%w: trailing tokens after statement", ErrUnsupportedQuery)
	}

	return query, nil
}

func (p *parser) parseWhere() (*wherePredicate, error) {
	column, ok := p.acceptIdent()
	if !ok {
		return nil, fmt.Errorf("%w: expected WHERE column", ErrUnsupportedQuery)
	}

	if !p.accept(tokEquals) {
		return nil, fmt.Errorf("%w: only equality predicates are supported", ErrUnsupportedQuery)
	}

	switch {
	case p.peek(tokString):
		return &wherePredicate{column: column, literal: p.take().text}, nil

	case p.peek(tokPlaceholder):
		number, convErr := strconv.Atoi(p.take().text)
		if convErr != nil || number < 1 {
			return nil, fmt.Errorf("%w: invalid placeholder number", ErrUnsupportedQuery)
		}
		return &wherePredicate{column: column, placeholder: number}, nil

	default:
		return nil, fmt.Errorf("%w: expected string literal or placeholder", ErrUnsupportedQuery)
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek(kind tokenKind) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind
}

func (p *parser) take() token {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *parser) accept(kind tokenKind) bool {
	if p.peek(kind) {
		p.pos++
		return true
	}

	return false
}

func (p *parser) acceptIdent() (string, bool) {
	if p.peek(tokIdent) {
		return p.take().text, true
	}

	return "", false
}

func (p *parser) acceptKeyword(keyword string) bool {
	if p.peek(tokIdent) && strings.EqualFold(p.tokens[p.pos].text, keyword) {
		p.pos++
		return true
	}

	return false
}

// evaluate filters, projects, and orders the visible versions into result
// rows. Argument binding is positional and text-only; a NULL argument matches
// no row, following SQL equality semantics.
func (q readQuery) evaluate(versions []*tupleVersion, args []asofreads.ArgValue) (asofreads.Rows, error) {
	rows := make(asofreads.Rows, 0, len(versions))

	for _, v := range versions {
		if q.where != nil {
			match, matchErr := q.where.matches(v, args)
			if matchErr != nil {
				return nil, matchErr
			}
			if !match {
				continue
			}
		}

		rows = append(rows, q.project(v))
	}

	if q.orderBy != "" {
		column := q.orderBy
		sort.SliceStable(rows, func(i, j int) bool {
			less := columnText(rows[i][column]) < columnText(rows[j][column])
			if q.orderDesc {
				return !less && columnText(rows[i][column]) != columnText(rows[j][column])
			}
			return less
		})
	}

	return rows, nil
}

func (q readQuery) project(v *tupleVersion) asofreads.Row {
	if q.columns == nil {
		return maps.Clone(v.cols)
	}

	row := make(asofreads.Row, len(q.columns))
	for _, column := range q.columns {
		row[column] = v.cols[column]
	}

	return row
}

func (w *wherePredicate) matches(v *tupleVersion, args []asofreads.ArgValue) (bool, error) {
	value, exists := v.cols[w.column]
	if !exists || value == nil {
		return false, nil
	}

	if w.placeholder > 0 {
		if w.placeholder > len(args) {
			return false, fmt.Errorf("%w: placeholder $%d has no bound argument", ErrUnsupportedQuery, w.placeholder)
		}

		arg := args[w.placeholder-1]
		if arg.Null {
			return false, nil
		}

		return columnText(value) == arg.Text, nil
	}

	return columnText(value) == w.literal, nil
}

// columnText renders a column value as text for comparison and ordering,
// matching the text-only argument binding of the gateway.
func columnText(value any) string {
	if value == nil {
		return ""
	}

	if s, isString := value.(string); isString {
		return s
	}

	return fmt.Sprint(value)
}
