package ruletree

import (
	"fmt"
	"sort"
	"strings"
)

// Row holds the values of one record row, keyed by attribute id.
type Row map[int]string

// A Product is the tabular value container rules are evaluated against:
// a mapping from group id to an ordered list of rows, each row a mapping
// from attribute id to string value.
//
// All values are carried as strings; numeric and date semantics live in
// the rules that consume them. A Product is mutable during a single
// validation (assignment rules write into it) and must not be shared
// between concurrent validations.
type Product struct {
	groups map[int][]Row
}

// NewProduct creates an empty product.
func NewProduct() *Product {
	return &Product{groups: map[int][]Row{}}
}

// Set writes the value into row 0 of the attribute's group, creating the
// group and the row on demand. If the attribute declares a maximum
// length, longer values are silently truncated; callers wanting a hard
// failure enforce it with a rule instead.
func (p *Product) Set(attr Attribute, value string) {
	if attr.MaxLength > 0 && len(value) > attr.MaxLength {
		value = value[:attr.MaxLength]
	}
	rows := p.groups[attr.GroupID]
	if len(rows) == 0 {
		rows = append(rows, Row{})
		p.groups[attr.GroupID] = rows
	}
	rows[0][attr.ID] = value
}

// SetRow writes the value into the given row of the attribute's group,
// extending the group with empty rows as needed.
func (p *Product) SetRow(attr Attribute, row int, value string) {
	if attr.MaxLength > 0 && len(value) > attr.MaxLength {
		value = value[:attr.MaxLength]
	}
	rows := p.groups[attr.GroupID]
	for len(rows) <= row {
		rows = append(rows, Row{})
	}
	p.groups[attr.GroupID] = rows
	rows[row][attr.ID] = value
}

// Get returns the value at (group, row, attr). The second return is
// false if the group, row or attribute is absent.
func (p *Product) Get(group, row, attr int) (string, bool) {
	rows, ok := p.groups[group]
	if !ok || row < 0 || row >= len(rows) {
		return "", false
	}
	v, ok := rows[row][attr]
	return v, ok
}

// Group returns the rows stored under the group id. The returned slice
// is the product's own storage; callers must not retain it across
// mutations.
func (p *Product) Group(id int) []Row {
	return p.groups[id]
}

// RowCount returns the number of rows in the group.
func (p *Product) RowCount(id int) int {
	return len(p.groups[id])
}

// Value reads row 0 of the attribute's group. Missing values read as
// the empty string.
func (p *Product) Value(attr Attribute) string {
	v, _ := p.Get(attr.GroupID, 0, attr.ID)
	return v
}

// String renders the product's groups and rows in group-id order.
func (p *Product) String() string {
	x := strings.Builder{}
	gids := make([]int, 0, len(p.groups))
	for g := range p.groups {
		gids = append(gids, g)
	}
	sort.Ints(gids)
	for _, g := range gids {
		fmt.Fprintf(&x, "group %d\n", g)
		for i, row := range p.groups[g] {
			aids := make([]int, 0, len(row))
			for a := range row {
				aids = append(aids, a)
			}
			sort.Ints(aids)
			for _, a := range aids {
				fmt.Fprintf(&x, "  [%d] %d = %q\n", i, a, row[a])
			}
		}
	}
	return x.String()
}
