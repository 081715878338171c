package freeboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// datasourceRefPattern matches `datasources.name` and `datasources["name"]`.
// The scan is textual: names built at runtime (concatenation, variables) are
// not detected and never trigger re-evaluation.
var datasourceRefPattern = regexp.MustCompile(`datasources.([\w_-]+)|datasources\[['"]([^'"]+)`)

var bareIdentifier = regexp.MustCompile(`^\w+$`)

// ErrUnsupportedExpression is returned when a calculated setting holds
// something other than source text or a list of sources.
var ErrUnsupportedExpression = errors.New("freeboard: unsupported expression value")

// ErrExpressionTimeout is returned when an expression or query runs longer
// than the evaluator timeout.
var ErrExpressionTimeout = errors.New("freeboard: expression timed out")

// DefaultExpressionTimeout bounds a single expression or query run.
const DefaultExpressionTimeout = time.Second

// Evaluator compiles calculated-setting sources into closures over a private
// JavaScript runtime. The closures receive a single `datasources` argument.
type Evaluator struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	scripts map[string]struct{}
	timeout time.Duration
}

// NewEvaluator builds an evaluator with an empty runtime and the default
// timeout.
func NewEvaluator() *Evaluator {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &Evaluator{
		vm:      vm,
		scripts: map[string]struct{}{},
		timeout: DefaultExpressionTimeout,
	}
}

// SetTimeout changes how long a single run may take before it is
// interrupted. Zero or less disables the limit.
func (e *Evaluator) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

// callLocked runs fn with the timeout armed. The runtime interrupt is always
// cleared before returning so the next call starts clean.
func (e *Evaluator) callLocked(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	if e.timeout > 0 {
		fired := make(chan struct{})
		timer := time.AfterFunc(e.timeout, func() {
			defer close(fired)
			e.vm.Interrupt(ErrExpressionTimeout)
		})
		defer func() {
			if !timer.Stop() {
				<-fired
			}
			e.vm.ClearInterrupt()
		}()
	}
	result, err := fn(goja.Undefined(), args...)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, fmt.Errorf("%w after %s", ErrExpressionTimeout, e.timeout)
	}
	return result, err
}

// Expression is a compiled calculated setting.
type Expression struct {
	// Raw is the setting text as stored (for multi-input settings, the joined array literal).
	Raw string
	// Body is the function body actually compiled.
	Body string
	// Literal reports that Body failed to compile and the raw text is returned verbatim.
	Literal bool
	// Dependencies lists the datasource names referenced by Body, in first-seen order.
	Dependencies []string

	fn   goja.Callable
	eval *Evaluator
}

// Compile turns a calculated-setting value into an Expression. A string is a
// single source; a list (multi-input) is joined into an array literal. Sources
// that fail to compile fall back to returning their text.
func (e *Evaluator) Compile(raw any) (*Expression, error) {
	script, err := expressionText(raw)
	if err != nil {
		return nil, err
	}
	body := script
	if strings.Count(body, ";") <= 1 && !strings.Contains(body, "return") {
		body = "return " + body
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	expr := &Expression{
		Raw:          script,
		Body:         body,
		Dependencies: scanDependencies(body),
		eval:         e,
	}
	fn, err := e.compileLocked(body)
	if err != nil {
		quoted, _ := json.Marshal(script)
		fn, err = e.compileLocked("return " + string(quoted) + ";")
		if err != nil {
			return nil, fmt.Errorf("freeboard: compile literal expression: %w", err)
		}
		expr.Literal = true
	}
	expr.fn = fn
	return expr, nil
}

func (e *Evaluator) compileLocked(body string) (goja.Callable, error) {
	prog, err := goja.Compile("calculated", "(function(datasources) {\n"+body+"\n})", false)
	if err != nil {
		return nil, err
	}
	value, err := e.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("freeboard: expression did not compile to a function")
	}
	return fn, nil
}

// Evaluate runs the expression against the latest data of every datasource.
// defined is false when the expression returned undefined. A reference to an
// unknown name in a single bare identifier returns the identifier itself.
// The expression sees a copy of the datasources map; assigning to its keys
// does not reach the caller.
func (x *Expression) Evaluate(datasources map[string]any) (value any, defined bool, err error) {
	e := x.eval
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := make(map[string]any, len(datasources))
	for name, data := range datasources {
		snapshot[name] = data
	}
	result, err := e.callLocked(x.fn, e.vm.ToValue(snapshot))
	if err != nil {
		if errors.Is(err, ErrExpressionTimeout) {
			return nil, false, err
		}
		if isReferenceError(err) && bareIdentifier.MatchString(x.Raw) {
			return x.Raw, true, nil
		}
		return nil, false, fmt.Errorf("freeboard: evaluate expression: %w", err)
	}
	if result == nil || goja.IsUndefined(result) {
		return nil, false, nil
	}
	return result.Export(), true, nil
}

// LoadScript runs an external script once in the evaluator runtime so the
// globals it defines are visible to expressions.
func (e *Evaluator) LoadScript(name string, source []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scripts[name]; ok {
		return nil
	}
	if _, err := e.vm.RunScript(name, string(source)); err != nil {
		return fmt.Errorf("freeboard: run script %s: %w", name, err)
	}
	e.scripts[name] = struct{}{}
	return nil
}

// Query evaluates `data<path>` against value, as in `.sensor.temp` or `["a"][0]`.
func (e *Evaluator) Query(value any, path string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, err := e.compileLockedWithParam("data", "return data"+path+";")
	if err != nil {
		return nil, err
	}
	result, err := e.callLocked(fn, e.vm.ToValue(value))
	if err != nil {
		return nil, fmt.Errorf("freeboard: query %q: %w", path, err)
	}
	if goja.IsUndefined(result) {
		return nil, nil
	}
	return result.Export(), nil
}

func (e *Evaluator) compileLockedWithParam(param, body string) (goja.Callable, error) {
	prog, err := goja.Compile("query", "(function("+param+") {\n"+body+"\n})", false)
	if err != nil {
		return nil, fmt.Errorf("freeboard: compile query: %w", err)
	}
	value, err := e.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("freeboard: query did not compile to a function")
	}
	return fn, nil
}

func expressionText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []string:
		return "[" + strings.Join(v, ",") + "]", nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedExpression, raw)
	}
}

func scanDependencies(source string) []string {
	var deps []string
	seen := map[string]struct{}{}
	for _, match := range datasourceRefPattern.FindAllStringSubmatch(source, -1) {
		name := match[1]
		if name == "" {
			name = match[2]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		deps = append(deps, name)
	}
	return deps
}

func isReferenceError(err error) bool {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return false
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return false
	}
	name := obj.Get("name")
	return name != nil && name.String() == "ReferenceError"
}
