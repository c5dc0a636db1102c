package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/store"
)

// condition is one "field op value" term of a where clause.
type condition struct {
	field  string
	negate bool
	values []*string // nil element means null
}

// parseWhere parses terms joined by AND. Supported operators are =, != and IN (...).
// Values are single-quoted strings, numbers, true, false or null.
func parseWhere(where string) ([]condition, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return nil, nil
	}

	var conds []condition
	for _, term := range splitAnd(where) {
		c, err := parseTerm(strings.TrimSpace(term))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrInvalidQuery, where, err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func splitAnd(where string) []string {
	var (
		terms  []string
		quoted bool
		start  int
	)
	upper := strings.ToUpper(where)
	for i := 0; i < len(where); i++ {
		if where[i] == '\'' {
			quoted = !quoted
			continue
		}
		if !quoted && strings.HasPrefix(upper[i:], " AND ") {
			terms = append(terms, where[start:i])
			start = i + len(" AND ")
			i = start - 1
		}
	}
	return append(terms, where[start:])
}

func parseTerm(term string) (condition, error) {
	// operators are searched before the first quoted value only
	head := term
	if q := strings.IndexByte(term, '\''); q >= 0 {
		head = term[:q]
	}
	upper := strings.ToUpper(head)

	if i := strings.Index(upper, " NOT IN "); i > 0 {
		values, err := parseList(term[i+len(" NOT IN "):])
		return condition{field: strings.TrimSpace(term[:i]), negate: true, values: values}, err
	}
	if i := strings.Index(upper, " IN "); i > 0 {
		values, err := parseList(term[i+len(" IN "):])
		return condition{field: strings.TrimSpace(term[:i]), values: values}, err
	}
	if i := strings.Index(head, "!="); i > 0 {
		v, err := parseValue(term[i+2:])
		return condition{field: strings.TrimSpace(term[:i]), negate: true, values: []*string{v}}, err
	}
	if i := strings.Index(head, "="); i > 0 {
		v, err := parseValue(term[i+1:])
		return condition{field: strings.TrimSpace(term[:i]), values: []*string{v}}, err
	}
	return condition{}, fmt.Errorf("unsupported term %q", term)
}

func parseList(s string) ([]*string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("expected (...) list, got %q", s)
	}
	var values []*string
	for _, part := range strings.Split(s[1:len(s)-1], ",") {
		v, err := parseValue(part)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func parseValue(s string) (*string, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "null"):
		return nil, nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		v := strings.ReplaceAll(s[1:len(s)-1], `\'`, `'`)
		return &v, nil
	case strings.EqualFold(s, "true"), strings.EqualFold(s, "false"):
		v := strings.ToLower(s)
		return &v, nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return &s, nil
	}
	return nil, fmt.Errorf("unsupported value %q", s)
}

func (c condition) match(rec datacopy.Record) bool {
	v, ok := rec[c.field]
	found := false
	for _, want := range c.values {
		if want == nil {
			if !ok || v == nil {
				found = true
			}
			continue
		}
		if ok && v != nil && render(v) == *want {
			found = true
		}
	}
	return found != c.negate
}

func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

type orderTerm struct {
	field string
	desc  bool
}

func parseOrderBy(orderBy string) ([]orderTerm, error) {
	var terms []orderTerm
	for _, part := range strings.Split(orderBy, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1:
			terms = append(terms, orderTerm{field: fields[0]})
		case 2:
			dir := strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return nil, fmt.Errorf("%w: order by %q", store.ErrInvalidQuery, orderBy)
			}
			terms = append(terms, orderTerm{field: fields[0], desc: dir == "DESC"})
		default:
			return nil, fmt.Errorf("%w: order by %q", store.ErrInvalidQuery, orderBy)
		}
	}
	return terms, nil
}

func sortRecords(recs []datacopy.Record, terms []orderTerm) {
	if len(terms) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, t := range terms {
			c := compare(recs[i][t.field], recs[j][t.field])
			if c == 0 {
				continue
			}
			if t.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compare orders nil first, numbers numerically and everything else by its text.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, aok := number(a)
	fb, bok := number(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(render(a), render(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
