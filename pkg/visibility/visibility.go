// Package visibility decides whether conditional parts of a wizard apply to the
// current form values: hidden steps, conditionally required fields, and the
// like.
package visibility

// Evaluator reports whether rule holds for target given ctx. An empty rule
// always holds.
type Evaluator interface {
	Eval(target, rule string, ctx Context) (bool, error)
}

// Context carries the inputs a rule can reference. Values holds the merged form
// values; Extras holds session metadata such as whether the entity is new and
// is addressed with the `extras.` prefix.
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(target, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(target, rule string, ctx Context) (bool, error) {
	return fn(target, rule, ctx)
}

// Always treats every rule as satisfied.
var Always Evaluator = EvaluatorFunc(func(string, string, Context) (bool, error) {
	return true, nil
})
