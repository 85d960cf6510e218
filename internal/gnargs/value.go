package gnargs

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a gn argument value: a string, a bool, an integer or a list of
// strings.
type Value interface {
	// GN renders the value in gn syntax.
	GN() string
}

type String string

type Bool bool

type Int int64

type List []string

var gnStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

func quote(s string) string { return `"` + gnStringEscaper.Replace(s) + `"` }

func (s String) GN() string { return quote(string(s)) }

func (b Bool) GN() string { return strconv.FormatBool(bool(b)) }

func (i Int) GN() string { return strconv.FormatInt(int64(i), 10) }

func (l List) GN() string {
	quoted := make([]string, len(l))
	for i, s := range l {
		quoted[i] = quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// FromAny converts a decoded TOML value into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int64:
		return Int(val), nil
	case int:
		return Int(val), nil
	case []string:
		return List(val), nil
	case []any:
		list := make(List, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list items must be strings, got %T", item)
			}
			list = append(list, s)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported gn value type %T", v)
	}
}

// ParseValue parses a value written in gn syntax, as accepted in SKIA_GN_ARGS:
// true, false, 26, "string", ["a", "b"]. Other bare words are taken as
// strings.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty value")
	case s == "true":
		return Bool(true), nil
	case s == "false":
		return Bool(false), nil
	case strings.HasPrefix(s, `"`):
		str, n, err := unquote(s)
		if err != nil {
			return nil, err
		}
		if n != len(s) {
			return nil, fmt.Errorf("trailing characters after string %s", s)
		}
		return String(str), nil
	case strings.HasPrefix(s, "["):
		return parseList(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	return String(s), nil
}

// parseList scans ["a", "b"]; commas inside quoted items are kept.
func parseList(s string) (List, error) {
	if !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("unterminated list %s", s)
	}
	list := List{}
	rest := strings.TrimSpace(s[1:])
	for {
		if strings.HasPrefix(rest, "]") {
			if strings.TrimSpace(rest[1:]) != "" {
				return nil, fmt.Errorf("trailing characters after list %s", s)
			}
			return list, nil
		}
		if rest == "" {
			return nil, fmt.Errorf("unterminated list %s", s)
		}
		if rest[0] != '"' {
			item, _, _ := strings.Cut(rest, ",")
			return nil, fmt.Errorf("invalid list item %s", strings.TrimSpace(strings.TrimSuffix(item, "]")))
		}
		str, n, err := unquote(rest)
		if err != nil {
			return nil, fmt.Errorf("unterminated list %s", s)
		}
		list = append(list, str)

		rest = strings.TrimSpace(rest[n:])
		if after, ok := strings.CutPrefix(rest, ","); ok {
			rest = strings.TrimSpace(after)
		} else if !strings.HasPrefix(rest, "]") {
			return nil, fmt.Errorf("unterminated list %s", s)
		}
	}
}

// unquote reads the gn string literal at the start of s and returns its value
// and the number of bytes consumed. gn escapes only \\, \" and \$; any other
// backslash is literal.
func unquote(s string) (string, int, error) {
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			return sb.String(), i + 1, nil
		case '\\':
			if i+1 < len(s) && strings.IndexByte(`\"$`, s[i+1]) >= 0 {
				i++
				sb.WriteByte(s[i])
				continue
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("invalid string %s", s)
}
