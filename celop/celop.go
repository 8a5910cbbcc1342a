// Package celop implements ruletree sources backed by Google's cel-go
// expression engine. See https://github.com/google/cel-go and
// https://opensource.google/projects/cel for more information about CEL.
//
// Two kinds of sources are provided: operator sources, which evaluate a
// CEL expression as a custom rule operator, and attribute sources, which
// compute an attribute value from an expression. Expressions are
// compiled once, when the source is created; evaluation reuses the
// compiled program.
package celop

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"

	"github.com/ezachrisen/ruletree"
)

// NewOperatorSource compiles the expression and returns a source whose
// operator evaluates it. The expression sees two variables:
//
//	attr  (string)        the name of the attribute under evaluation
//	args  (list(string))  the operator arguments from the rule
//
// A boolean result becomes the verdict "true" or "false"; string and
// numeric results are returned as-is, so expressions can also serve as
// value producers for assignment actions.
func NewOperatorSource(name, expr string) (*ruletree.Source, error) {
	prg, err := compile(expr,
		cel.Variable("attr", cel.StringType),
		cel.Variable("args", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, err
	}

	return &ruletree.Source{
		Name:     name,
		Endpoint: expr,
		Operator: ruletree.OperatorFunc(func(src *ruletree.Source, attr string, args [4]string) (string, error) {
			out, _, err := prg.Eval(map[string]interface{}{
				"attr": attr,
				"args": args[:],
			})
			if err != nil {
				return "", fmt.Errorf("evaluating operator %s: %w", name, err)
			}
			return resultString(out.Value())
		}),
	}, nil
}

// NewAttributeSource compiles the expression and returns a source whose
// retriever evaluates it. The expression sees two variables:
//
//	attr      (string)  the name of the attribute being retrieved
//	endpoint  (string)  the source's endpoint
func NewAttributeSource(name, endpoint, expr string) (*ruletree.Source, error) {
	prg, err := compile(expr,
		cel.Variable("attr", cel.StringType),
		cel.Variable("endpoint", cel.StringType),
	)
	if err != nil {
		return nil, err
	}

	return &ruletree.Source{
		Name:     name,
		Endpoint: endpoint,
		Retriever: ruletree.RetrieverFunc(func(src *ruletree.Source, attr string) (string, error) {
			out, _, err := prg.Eval(map[string]interface{}{
				"attr":     attr,
				"endpoint": src.Endpoint,
			})
			if err != nil {
				return "", fmt.Errorf("evaluating source %s: %w", name, err)
			}
			return resultString(out.Value())
		}),
	}, nil
}

// compile parses and checks the expression against the declared
// variables and returns the runnable program.
func compile(expr string, opts ...cel.EnvOption) (cel.Program, error) {
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building program for %q: %w", expr, err)
	}
	return prg, nil
}

// resultString converts a CEL evaluation result to the string carried
// in products and verdicts.
func resultString(v interface{}) (string, error) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported CEL result type %T", v)
	}
}
