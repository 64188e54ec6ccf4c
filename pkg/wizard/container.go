package wizard

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/visibility"
	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

// StepState is what the container needs to know about a step's sub-form.
type StepState interface {
	Name() string
	Label() string
	HasErrors() bool
}

// StepDescriptor describes one tab of the step bar. Index is the 1-based
// position among visible steps and 0 for hidden ones.
type StepDescriptor struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Index    int    `json:"index"`
	Visible  bool   `json:"visible"`
	HasError bool   `json:"has_error"`
	Active   bool   `json:"active"`
}

// Swipe is a horizontal gesture direction.
type Swipe int

const (
	// SwipeLeft moves forward, like turning a page.
	SwipeLeft Swipe = iota
	// SwipeRight moves back.
	SwipeRight
)

// StepQueryKey is the query parameter carrying the active step index.
const StepQueryKey = "step"

type containerStep struct {
	state   StepState
	visible string
}

// Container tracks the active step among the visible ones. The active index
// is always within [1, Count()].
type Container struct {
	mu        sync.Mutex
	steps     []containerStep
	context   func() visibility.Context
	evaluator visibility.Evaluator
	active    string
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithVisibilityContext supplies the values step visibility rules read.
func WithVisibilityContext(fn func() visibility.Context) ContainerOption {
	return func(c *Container) {
		if fn != nil {
			c.context = fn
		}
	}
}

// WithStepEvaluator overrides the evaluator used for visibility rules.
func WithStepEvaluator(evaluator visibility.Evaluator) ContainerOption {
	return func(c *Container) {
		if evaluator != nil {
			c.evaluator = evaluator
		}
	}
}

// NewContainer builds a container over states; visible holds the visibility
// rule per step name (missing means always visible). It starts on step 1.
func NewContainer(states []StepState, visible map[string]string, opts ...ContainerOption) *Container {
	c := &Container{
		context:   func() visibility.Context { return visibility.Context{} },
		evaluator: expr.New(),
	}
	for _, state := range states {
		c.steps = append(c.steps, containerStep{state: state, visible: visible[state.Name()]})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if names := c.visibleNames(); len(names) > 0 {
		c.active = names[0]
	}
	return c
}

// Count returns the number of visible steps.
func (c *Container) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visibleNames())
}

// Index returns the 1-based index of the active step.
func (c *Container) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(c.visibleNames())
}

// Active returns the name of the active step.
func (c *Container) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := c.visibleNames()
	idx := c.indexLocked(names)
	if idx == 0 {
		return ""
	}
	return names[idx-1]
}

// Next moves forward, staying put on the last step.
func (c *Container) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := c.visibleNames()
	return c.moveLocked(names, c.indexLocked(names)+1)
}

// Previous moves back, staying put on the first step.
func (c *Container) Previous() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := c.visibleNames()
	return c.moveLocked(names, c.indexLocked(names)-1)
}

// GoTo jumps to the n-th visible step, clamped to the valid range.
func (c *Container) GoTo(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(c.visibleNames(), n)
}

// GoToStep activates the named step when it is visible and reports whether it
// did.
func (c *Container) GoToStep(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, visible := range c.visibleNames() {
		if visible == name {
			c.active = name
			return true
		}
	}
	return false
}

// Swipe maps a gesture onto Next or Previous.
func (c *Container) Swipe(direction Swipe) int {
	if direction == SwipeRight {
		return c.Previous()
	}
	return c.Next()
}

// Steps describes every step, hidden ones included, in declaration order.
func (c *Container) Steps() []StepDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := c.visibleNames()
	activeIdx := c.indexLocked(names)
	position := map[string]int{}
	for i, name := range names {
		position[name] = i + 1
	}

	out := make([]StepDescriptor, 0, len(c.steps))
	for _, step := range c.steps {
		name := step.state.Name()
		idx := position[name]
		out = append(out, StepDescriptor{
			Name:     name,
			Label:    step.state.Label(),
			Index:    idx,
			Visible:  idx > 0,
			HasError: step.state.HasErrors(),
			Active:   idx > 0 && idx == activeIdx,
		})
	}
	return out
}

// Query encodes the active step for a shareable location.
func (c *Container) Query() url.Values {
	return url.Values{StepQueryKey: []string{strconv.Itoa(c.Index())}}
}

// Restore applies a step index read from a shareable location. Invalid or
// missing values leave the container on step 1.
func (c *Container) Restore(query url.Values) int {
	n, ok := ParseStepIndex(query.Get(StepQueryKey))
	if !ok {
		return c.GoTo(1)
	}
	return c.GoTo(n)
}

// ParseStepIndex parses a 1-based step index.
func ParseStepIndex(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (c *Container) moveLocked(names []string, n int) int {
	if len(names) == 0 {
		return 0
	}
	n = clamp(n, 1, len(names))
	c.active = names[n-1]
	return n
}

// indexLocked resolves the active name against the current visible set. When
// the active step was hidden since, the nearest earlier visible step wins.
func (c *Container) indexLocked(names []string) int {
	if len(names) == 0 {
		return 0
	}
	for i, name := range names {
		if name == c.active {
			return i + 1
		}
	}
	best := 1
	for _, step := range c.steps {
		name := step.state.Name()
		if name == c.active {
			break
		}
		for i, visible := range names {
			if visible == name {
				best = i + 1
			}
		}
	}
	return best
}

func (c *Container) visibleNames() []string {
	ctx := c.context()
	names := make([]string, 0, len(c.steps))
	for _, step := range c.steps {
		if step.visible != "" {
			ok, err := c.evaluator.Eval(step.state.Name(), step.visible, ctx)
			if err != nil || !ok {
				continue
			}
		}
		names = append(names, step.state.Name())
	}
	return names
}

func clamp(n, low, high int) int {
	if n < low {
		return low
	}
	if n > high {
		return high
	}
	return n
}
