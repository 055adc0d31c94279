package lineset

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparator orders two lines, returning a negative number when a sorts
// before b, zero when they are identical and a positive number otherwise.
type Comparator func(a, b string) int

// CollationBinary selects raw byte order instead of a linguistic collation.
const CollationBinary = "binary"

// Binary orders lines by their bytes.
func Binary() Comparator {
	return strings.Compare
}

// Russian orders lines by Russian linguistic collation: letters follow the
// alphabet, ё sorts next to е, and case variants stay adjacent.
func Russian() Comparator {
	return forTag(language.Russian)
}

// ByName returns the comparator for a configuration value: "binary" or any
// BCP 47 language tag such as "ru" or "uk".
func ByName(name string) (Comparator, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, CollationBinary) {
		return Binary(), nil
	}
	if name == "" {
		return Russian(), nil
	}
	tag, err := language.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("parsing collation %q: %w", name, err)
	}
	return forTag(tag), nil
}

// forTag wraps a collator for tag. The collator keeps internal buffers, so
// calls are serialised. Lines with equal collation keys fall back to byte
// order, which keeps sorting deterministic.
func forTag(tag language.Tag) Comparator {
	c := collate.New(tag)
	var mu sync.Mutex
	return func(a, b string) int {
		mu.Lock()
		r := c.CompareString(a, b)
		mu.Unlock()
		if r != 0 {
			return r
		}
		return strings.Compare(a, b)
	}
}

var defaultComparator = sync.OnceValue(Russian)

func orDefault(cmp Comparator) Comparator {
	if cmp == nil {
		return defaultComparator()
	}
	return cmp
}
