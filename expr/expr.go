package expr

import (
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/kbukum/pipegraph/errors"
)

// Reference is a variable an expression reads, e.g. matrix.os is
// {Root: "matrix", Name: "os"}. Name is empty for a bare root.
type Reference struct {
	Root string
	Name string
}

func (r Reference) String() string {
	if r.Name == "" {
		return r.Root
	}
	return r.Root + "." + r.Name
}

// Condition is a compiled boolean expression.
type Condition struct {
	src  string
	expr hclsyntax.Expression
}

// ParseCondition compiles src. Syntax errors and calls to unknown functions
// are reported here, before anything runs.
func ParseCondition(src string) (*Condition, error) {
	e, err := parse(src, func(b []byte) (hclsyntax.Expression, hcl.Diagnostics) {
		return hclsyntax.ParseExpression(b, "if", hcl.Pos{Line: 1, Column: 1})
	})
	if err != nil {
		return nil, err
	}
	return &Condition{src: src, expr: e}, nil
}

// String returns the source text.
func (c *Condition) String() string { return c.src }

// References returns the variables c reads, sorted and deduplicated.
func (c *Condition) References() []Reference { return references(c.expr) }

// Eval evaluates c in scope. A non-boolean result is an error.
func (c *Condition) Eval(scope Scope) (bool, error) {
	v, diags := c.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return false, errors.InvalidExpression(c.src, diags)
	}
	if v.IsNull() || !v.IsKnown() {
		return false, errors.InvalidExpression(c.src, nil).WithDetail("reason", "condition evaluated to null")
	}
	if !v.Type().Equals(cty.Bool) {
		return false, errors.InvalidExpression(c.src, nil).
			WithDetail("reason", "condition must be a bool, got "+v.Type().FriendlyName())
	}
	return v.True(), nil
}

// Template is a compiled string template.
type Template struct {
	src  string
	expr hclsyntax.Expression
}

// ParseTemplate compiles src. Text outside ${...} is literal.
func ParseTemplate(src string) (*Template, error) {
	e, err := parse(src, func(b []byte) (hclsyntax.Expression, hcl.Diagnostics) {
		return hclsyntax.ParseTemplate(b, "template", hcl.Pos{Line: 1, Column: 1})
	})
	if err != nil {
		return nil, err
	}
	return &Template{src: src, expr: e}, nil
}

// IsLiteral reports whether t contains no interpolation.
func (t *Template) IsLiteral() bool { return !strings.Contains(t.src, "${") && !strings.Contains(t.src, "%{") }

// References returns the variables t reads.
func (t *Template) References() []Reference { return references(t.expr) }

// Render evaluates t in scope.
func (t *Template) Render(scope Scope) (string, error) {
	if t.IsLiteral() {
		return t.src, nil
	}
	v, diags := t.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return "", errors.InvalidExpression(t.src, diags)
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil || s.IsNull() {
		return "", errors.InvalidExpression(t.src, err)
	}
	return s.AsString(), nil
}

// Render is a shorthand for ParseTemplate followed by Render.
func Render(src string, scope Scope) (string, error) {
	t, err := ParseTemplate(src)
	if err != nil {
		return "", err
	}
	return t.Render(scope)
}

func parse(src string, fn func([]byte) (hclsyntax.Expression, hcl.Diagnostics)) (hclsyntax.Expression, error) {
	e, diags := fn([]byte(src))
	if diags.HasErrors() {
		return nil, errors.InvalidExpression(src, diags)
	}
	for _, name := range calledFunctions(e) {
		if _, ok := functions[name]; !ok {
			return nil, errors.InvalidExpression(src, errors.NotFound("function", name))
		}
	}
	return e, nil
}

func references(e hclsyntax.Expression) []Reference {
	seen := make(map[Reference]struct{})
	for _, traversal := range e.Variables() {
		ref := Reference{Root: traversal.RootName()}
		if len(traversal) > 1 {
			switch step := traversal[1].(type) {
			case hcl.TraverseAttr:
				ref.Name = step.Name
			case hcl.TraverseIndex:
				if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
					ref.Name = step.Key.AsString()
				}
			}
		}
		seen[ref] = struct{}{}
	}

	refs := make([]Reference, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

// calledFunctions walks the syntax tree for function call names.
func calledFunctions(e hclsyntax.Expression) []string {
	var names []string
	_ = hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			names = append(names, call.Name)
		}
		return nil
	})
	return names
}
