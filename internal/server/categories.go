package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errBadCategory = errors.New("invalid entities_to_extract")

var categoryNameRe = regexp.MustCompile(`^[A-Z_ ]{1,64}$`)

const maxCategories = 64

// parseCategoryList reads entities_to_extract from a form value. It accepts
// a comma-separated list, a JSON array, or a bracketed list with single
// quotes such as ['EMAIL', 'TAX_ID']. The value is parsed, never evaluated.
func parseCategoryList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err == nil {
			return checkNames(names)
		}
		if !strings.HasSuffix(raw, "]") {
			return nil, fmt.Errorf("%w: unterminated list", errBadCategory)
		}
		raw = raw[1 : len(raw)-1]
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		names = append(names, unquote(part))
	}
	return checkNames(names)
}

// parseCategoriesJSON reads entities_to_extract from a JSON body, where it may
// be an array of strings or a string in any form parseCategoryList accepts.
func parseCategoriesJSON(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, fmt.Errorf("%w: expected an array of strings", errBadCategory)
		}
		return checkNames(names)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadCategory, err)
		}
		return parseCategoryList(s)
	default:
		return nil, fmt.Errorf("%w: expected an array or a string", errBadCategory)
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// checkNames validates each name in its uppercased form but keeps the name
// as sent so results are keyed the way the caller asked.
func checkNames(names []string) ([]string, error) {
	if len(names) > maxCategories {
		return nil, fmt.Errorf("%w: more than %d categories", errBadCategory, maxCategories)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !categoryNameRe.MatchString(strings.ToUpper(n)) {
			return nil, fmt.Errorf("%w: %q is not a valid category name", errBadCategory, truncate(n, 32))
		}
		out = append(out, n)
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
