package sqlgate

import (
	"sort"
	"strings"
)

// Catalog is the set of known relations and their columns. Every identifier
// the gate renders comes from here.
type Catalog struct {
	relations map[string][]string
	columns   map[string]map[string]struct{}
}

func NewCatalog(relations map[string][]string) Catalog {
	c := Catalog{
		relations: make(map[string][]string, len(relations)),
		columns:   make(map[string]map[string]struct{}, len(relations)),
	}
	for rel, cols := range relations {
		rel = strings.ToLower(rel)
		set := make(map[string]struct{}, len(cols))
		ordered := make([]string, 0, len(cols))
		for _, col := range cols {
			col = strings.ToLower(col)
			if _, dup := set[col]; dup {
				continue
			}
			set[col] = struct{}{}
			ordered = append(ordered, col)
		}
		c.relations[rel] = ordered
		c.columns[rel] = set
	}
	return c
}

func (c Catalog) HasRelation(rel string) bool {
	_, ok := c.relations[strings.ToLower(rel)]
	return ok
}

func (c Catalog) HasColumn(rel, col string) bool {
	_, ok := c.columns[strings.ToLower(rel)][strings.ToLower(col)]
	return ok
}

// Columns returns the columns of rel in declaration order.
func (c Catalog) Columns(rel string) []string {
	return append([]string(nil), c.relations[strings.ToLower(rel)]...)
}

func (c Catalog) Relations() []string {
	out := make([]string, 0, len(c.relations))
	for rel := range c.relations {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Describe renders the catalog restricted to rels, hiding any column hidden
// reports true for. It is used to tell the model which shape it may query.
func (c Catalog) Describe(rels []string, hidden func(rel, col string) bool) string {
	var b strings.Builder
	for _, rel := range rels {
		cols, ok := c.relations[strings.ToLower(rel)]
		if !ok {
			continue
		}
		visible := make([]string, 0, len(cols))
		for _, col := range cols {
			if hidden != nil && hidden(rel, col) {
				continue
			}
			visible = append(visible, col)
		}
		b.WriteString(rel)
		b.WriteString("(")
		b.WriteString(strings.Join(visible, ", "))
		b.WriteString(")\n")
	}
	return b.String()
}
