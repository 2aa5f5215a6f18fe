package accent

import "fmt"

// Category is one of the regional English variants the engine scores.
type Category int

const (
	American Category = iota
	British
	Australian
	Indian
)

// NeutralLabel is reported when no category gathered any evidence.
const NeutralLabel = "Neutral/General English"

// Categories lists every category in enumeration order. Ties are resolved in
// favour of the earliest entry.
var Categories = [...]Category{American, British, Australian, Indian}

var categoryNames = [...]string{"American", "British", "Australian", "Indian"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory resolves a category name as produced by String.
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories {
		if categoryNames[c] == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown accent category %q", name)
}

// Counts holds one non-negative value per category.
type Counts [len(Categories)]int

// Total sums all entries.
func (c Counts) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Map renders the counts keyed by category name, for JSON payloads.
func (c Counts) Map() map[string]int {
	out := make(map[string]int, len(c))
	for _, cat := range Categories {
		out[cat.String()] = c[cat]
	}
	return out
}
