// Package clickrule decides which clicks count as save triggers. A rule is
// an expr-lang boolean expression over the clicked element.
package clickrule

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/hazyhaar/formkeep/formkeep/internal/dom"
)

// Default matches buttons, anything inside a div with an inline onclick,
// and the implant / furcation toggles of the periodontal chart.
const Default = `tag == "button" || in_onclick || id contains "implantat" || id contains "furcation"`

// Env is the variable set a rule sees.
type Env struct {
	Tag       string `expr:"tag"`
	ID        string `expr:"id"`
	Name      string `expr:"name"`
	Type      string `expr:"type"`
	InOnclick bool   `expr:"in_onclick"`
}

// Rule is a compiled click predicate.
type Rule struct {
	source  string
	program *exprvm.Program
}

// Compile parses and type-checks expression. An empty expression compiles
// Default.
func Compile(expression string) (*Rule, error) {
	if strings.TrimSpace(expression) == "" {
		expression = Default
	}
	program, err := exprlang.Compile(expression, exprlang.Env(Env{}), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("clickrule: compile %q: %w", expression, err)
	}
	return &Rule{source: expression, program: program}, nil
}

// MustCompile is Compile that panics, for package-level defaults.
func MustCompile(expression string) *Rule {
	r, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the rule source.
func (r *Rule) String() string { return r.source }

// Match evaluates the rule against a click target.
func (r *Rule) Match(t dom.Target) (bool, error) {
	out, err := exprlang.Run(r.program, Env{
		Tag:       string(t.Tag),
		ID:        t.ID,
		Name:      t.Name,
		Type:      t.Type,
		InOnclick: t.InOnclick,
	})
	if err != nil {
		return false, fmt.Errorf("clickrule: run %q: %w", r.source, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
