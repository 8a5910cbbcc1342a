package ruletree_test

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ezachrisen/ruletree"
)

// -------------------------------------------------- TEST CATALOG

// testAttributes is the attribute metadata shared by most tests.
// Attribute "account" is the record key.
var testAttributes = ruletree.AttributeList{
	{ID: 1, Name: "account", GroupID: 0, Kind: ruletree.String{}, Key: true},
	{ID: 2, Name: "name", GroupID: 0, Kind: ruletree.String{}},
	{ID: 3, Name: "age", GroupID: 0, Kind: ruletree.Integer{}},
	{ID: 4, Name: "country", GroupID: 0, Kind: ruletree.String{}},
	{ID: 5, Name: "price", GroupID: 1, Kind: ruletree.Decimal{}},
	{ID: 6, Name: "qty", GroupID: 1, Kind: ruletree.Integer{}},
	{ID: 7, Name: "total", GroupID: 1, Kind: ruletree.Decimal{}},
	{ID: 8, Name: "status", GroupID: 0, Kind: ruletree.String{}},
	{ID: 9, Name: "start_date", GroupID: 0, Kind: ruletree.Date{}},
	{ID: 10, Name: "code", GroupID: 0, Kind: ruletree.String{}, MaxLength: 4},
}

func testCatalog() *ruletree.Catalog {
	c, err := ruletree.NewCatalog(testAttributes)
	if err != nil {
		panic(err)
	}
	return c
}

// newProduct builds a product with row-0 values set by attribute name.
func newProduct(c *ruletree.Catalog, values map[string]string) *ruletree.Product {
	p := ruletree.NewProduct()
	for name, v := range values {
		a, err := c.ByName(name)
		if err != nil {
			panic(err)
		}
		p.Set(a, v)
	}
	return p
}

// -------------------------------------------------- STUB SOURCES

// stubOperator returns an operator source that replies with verdicts
// keyed on the first operand, and records the invocations it saw.
type stubOperator struct {
	verdicts map[string]string // first operand -> verdict
	fallback string
	invoked  []string
}

func (o *stubOperator) source(name string) *ruletree.Source {
	return &ruletree.Source{
		Name: name,
		Operator: ruletree.OperatorFunc(func(src *ruletree.Source, attr string, args [4]string) (string, error) {
			o.invoked = append(o.invoked, args[0])
			if v, ok := o.verdicts[args[0]]; ok {
				return v, nil
			}
			return o.fallback, nil
		}),
	}
}

// fixedSource returns an attribute source that always produces v.
func fixedSource(name, v string) *ruletree.Source {
	return &ruletree.Source{
		Name: name,
		Retriever: ruletree.RetrieverFunc(func(src *ruletree.Source, attr string) (string, error) {
			return v, nil
		}),
	}
}

// -------------------------------------------------- RESULT HELPERS

// flattenReport maps rule set id -> pass for every rule set in the
// report, so tests can compare against expected maps.
func flattenReport(r *ruletree.Report) map[string]bool {
	m := map[string]bool{}
	for _, rs := range r.RuleSets {
		m[rs.RuleSetID] = rs.Pass
	}
	return m
}

// match compares a flattened result map against the expected
// verdicts. Both directions are checked: missing and unexpected rule
// sets are errors.
func match(result map[string]bool, expected map[string]bool) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, k := range keys {
		got, ok := result[k]
		if !ok {
			problems = append(problems, fmt.Sprintf("expected rule set %s not evaluated", k))
			continue
		}
		if got != expected[k] {
			problems = append(problems, fmt.Sprintf("rule set %s: got pass=%v, want %v", k, got, expected[k]))
		}
	}
	for k := range result {
		if _, ok := expected[k]; !ok {
			problems = append(problems, fmt.Sprintf("unexpected rule set %s evaluated", k))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
