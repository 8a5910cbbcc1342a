package ruletree

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// A TreeDescriptor summarizes one rule tree for composition purposes:
// its identity, the cost bounds of evaluating it, and the attribute
// names its rules require.
type TreeDescriptor struct {
	ID         string
	Name       string
	MinCost    uint64
	MaxCost    uint64
	Attributes []string
}

// A Grove is an ordered composition of tree descriptors with aggregated
// cost and attribute metadata. It is purely a data container; the
// engine never consults it.
type Grove struct {
	descriptors []TreeDescriptor
}

// NewGrove creates an empty grove.
func NewGrove() *Grove {
	return &Grove{}
}

// Add appends a descriptor, preserving order.
func (g *Grove) Add(d TreeDescriptor) {
	g.descriptors = append(g.descriptors, d)
}

// Len is the number of descriptors in the grove.
func (g *Grove) Len() int {
	return len(g.descriptors)
}

// Descriptors returns the descriptors in insertion order.
func (g *Grove) Descriptors() []TreeDescriptor {
	out := make([]TreeDescriptor, len(g.descriptors))
	copy(out, g.descriptors)
	return out
}

// TotalMinCost sums the minimum costs of all descriptors.
func (g *Grove) TotalMinCost() uint64 {
	var total uint64
	for _, d := range g.descriptors {
		total += d.MinCost
	}
	return total
}

// TotalMaxCost sums the maximum costs of all descriptors.
func (g *Grove) TotalMaxCost() uint64 {
	var total uint64
	for _, d := range g.descriptors {
		total += d.MaxCost
	}
	return total
}

// RequiredAttributes returns the sorted union of the attribute names
// required by the grove's descriptors.
func (g *Grove) RequiredAttributes() []string {
	set := map[string]bool{}
	for _, d := range g.descriptors {
		for _, a := range d.Attributes {
			set[a] = true
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// String renders the grove's descriptors and aggregate totals.
func (g *Grove) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nRULE GROVE\n")
	tw.AppendHeader(table.Row{"Tree", "Name", "Min Cost", "Max Cost", "Attributes"})
	for _, d := range g.descriptors {
		tw.AppendRow(table.Row{d.ID, d.Name, d.MinCost, d.MaxCost, len(d.Attributes)})
	}
	tw.AppendFooter(table.Row{"total", "", g.TotalMinCost(), g.TotalMaxCost(), len(g.RequiredAttributes())})
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}
