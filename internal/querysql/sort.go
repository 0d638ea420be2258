package querysql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSortOrder is returned for a sort order outside the accepted grammar.
var ErrInvalidSortOrder = errors.New("invalid sort order")

var collations = map[string]bool{
	"BINARY": true,
	"NOCASE": true,
	"RTRIM":  true,
}

// NormalizeSortOrder checks sortOrder and returns it in canonical form.
//
// Accepted grammar, keywords case-insensitive:
//
//	term {, term}
//	term = column [COLLATE (BINARY|NOCASE|RTRIM)] [ASC|DESC]
//
// The empty string is valid and means natural order. Sort orders are the one
// caller-supplied piece that lands in SQL text, so nothing outside this
// grammar is accepted.
func NormalizeSortOrder(sortOrder string) (string, error) {
	if strings.TrimSpace(sortOrder) == "" {
		return "", nil
	}

	terms := strings.Split(sortOrder, ",")
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		norm, err := normalizeTerm(term)
		if err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrInvalidSortOrder, sortOrder, err)
		}
		out = append(out, norm)
	}

	return strings.Join(out, ", "), nil
}

func normalizeTerm(term string) (string, error) {
	words := strings.Fields(term)
	if len(words) == 0 {
		return "", errors.New("empty term")
	}

	col := words[0]
	if err := checkColumn(col); err != nil {
		return "", err
	}
	parts := []string{col}
	words = words[1:]

	if len(words) >= 2 && strings.EqualFold(words[0], "COLLATE") {
		coll := strings.ToUpper(words[1])
		if !collations[coll] {
			return "", fmt.Errorf("unsupported collation %q", words[1])
		}
		parts = append(parts, "COLLATE", coll)
		words = words[2:]
	}

	if len(words) >= 1 {
		dir := strings.ToUpper(words[0])
		if dir != "ASC" && dir != "DESC" {
			return "", fmt.Errorf("unexpected %q", words[0])
		}
		parts = append(parts, dir)
		words = words[1:]
	}

	if len(words) > 0 {
		return "", fmt.Errorf("unexpected %q", strings.Join(words, " "))
	}

	return strings.Join(parts, " "), nil
}
