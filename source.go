package ruletree

import (
	"fmt"
	"sort"
)

// A Retriever produces the current value of an attribute from an
// external system. The source is passed back so a single retriever
// implementation can serve many configured sources.
type Retriever interface {
	Retrieve(src *Source, attr string) (string, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(src *Source, attr string) (string, error)

func (f RetrieverFunc) Retrieve(src *Source, attr string) (string, error) {
	return f(src, attr)
}

// An Operator implements a named custom rule operator. The engine passes
// the rule's target attribute name and up to four resolved operand
// strings; the returned string is interpreted as the rule verdict
// ("1"/"true" pass, "0"/"false" fail, anything else a severe failure).
type Operator interface {
	Invoke(src *Source, attr string, args [4]string) (string, error)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(src *Source, attr string, args [4]string) (string, error)

func (f OperatorFunc) Invoke(src *Source, attr string, args [4]string) (string, error) {
	return f(src, attr, args)
}

// A Source names a caller-supplied value producer: an endpoint plus the
// retrieval or operator implementation that talks to it. The Endpoint
// and Credential fields are opaque to the engine.
type Source struct {
	Name       string
	Endpoint   string
	Credential string

	// At least one of the two must be set, depending on whether the
	// source is bound as an attribute source or a custom operator.
	Retriever Retriever
	Operator  Operator
}

// SourceRegistry holds the two source maps consulted during validation:
// attribute sources, used to assemble the current record, and custom
// operator sources, dispatched by name from rules.
type SourceRegistry struct {
	attrs map[string]*Source
	ops   map[string]*Source
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		attrs: map[string]*Source{},
		ops:   map[string]*Source{},
	}
}

// BindAttribute binds a source to an attribute name. Rebinding a name
// replaces the previous source.
func (r *SourceRegistry) BindAttribute(attrName string, src *Source) error {
	if attrName == "" {
		return fmt.Errorf("%w: empty attribute name", ErrSource)
	}
	if src == nil || src.Retriever == nil {
		return fmt.Errorf("%w: attribute %s bound to a source with no retriever", ErrSource, attrName)
	}
	r.attrs[attrName] = src
	return nil
}

// BindOperator binds a source to a custom operator name.
func (r *SourceRegistry) BindOperator(opName string, src *Source) error {
	if opName == "" {
		return fmt.Errorf("%w: empty operator name", ErrSource)
	}
	if src == nil || src.Operator == nil {
		return fmt.Errorf("%w: operator %s bound to a source with no operator implementation", ErrSource, opName)
	}
	r.ops[opName] = src
	return nil
}

// AttributeSource returns the source bound to the attribute name.
func (r *SourceRegistry) AttributeSource(attrName string) (*Source, bool) {
	s, ok := r.attrs[attrName]
	return s, ok
}

// OperatorSource returns the source bound to the custom operator name.
func (r *SourceRegistry) OperatorSource(opName string) (*Source, bool) {
	s, ok := r.ops[opName]
	return s, ok
}

// AttributeNames returns the bound attribute names in sorted order, so
// that current-record assembly is deterministic.
func (r *SourceRegistry) AttributeNames() []string {
	names := make([]string, 0, len(r.attrs))
	for n := range r.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Assemble invokes every bound attribute source and writes the results
// into the product. Retrievals must be independent of one another; they
// are invoked in sorted name order. The first failure aborts assembly.
func (r *SourceRegistry) Assemble(catalog *Catalog, p *Product) error {
	for _, name := range r.AttributeNames() {
		src := r.attrs[name]
		attr, err := catalog.ByName(name)
		if err != nil {
			return err
		}
		v, err := src.Retriever.Retrieve(src, name)
		if err != nil {
			return fmt.Errorf("%w: retrieving %s from %s: %v", ErrSource, name, src.Name, err)
		}
		p.Set(attr, v)
	}
	return nil
}

// Invoke dispatches a custom operator by name.
func (r *SourceRegistry) Invoke(opName, attr string, args [4]string) (string, error) {
	src, ok := r.ops[opName]
	if !ok {
		return "", fmt.Errorf("%w: no custom operator named %s", ErrSource, opName)
	}
	v, err := src.Operator.Invoke(src, attr, args)
	if err != nil {
		return "", fmt.Errorf("%w: custom operator %s: %v", ErrSource, opName, err)
	}
	return v, nil
}
