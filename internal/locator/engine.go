// engine.go — Component B: the selector-engine registry.
// An Engine is a pure function {root, body} -> ordered elements. Built-ins
// are seeded at construction; callers may register additional engines via
// Extend, mirroring spec §6's `extend(source, params)` entry point (the
// loaded-source/eval half of that contract is out of scope for a Go port —
// callers register a Go Engine value directly instead).
package locator

import "fmt"

// Engine is the capability every selector engine implements. Pierce and
// Light are the same underlying engine parameterized by pierceShadow, per
// design note 9 ("piercing vs light engines... model as an engine parameter").
type Engine interface {
	QueryAll(root Node, body string, env Environment) ([]Node, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(root Node, body string, env Environment) ([]Node, error)

func (f EngineFunc) QueryAll(root Node, body string, env Environment) ([]Node, error) {
	return f(root, body, env)
}

// isPseudoEngine marks nth/visible: producers that the evaluator short-circuits.
var pseudoEngines = map[string]bool{"nth": true, "visible": true}

// Registry holds the named engines available to a single injected-script
// instance. Construction-time inputs mirror spec §4.B.
type Registry struct {
	engines              map[string]Engine
	stableRafCount        int
	replaceRafWithTimeout bool
	browserName           string
}

// RegistryOptions carries the construction-time inputs from spec §4.B.
type RegistryOptions struct {
	StableRafCount        int
	ReplaceRafWithTimeout bool
	BrowserName           string
	CustomEngines         map[string]Engine
}

// NewRegistry seeds the built-in engines and any caller-supplied custom ones.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.StableRafCount <= 0 {
		opts.StableRafCount = 1
	}
	r := &Registry{
		engines:               map[string]Engine{},
		stableRafCount:         opts.StableRafCount,
		replaceRafWithTimeout:  opts.ReplaceRafWithTimeout,
		browserName:           opts.BrowserName,
	}

	r.register("css", EngineFunc(cssQueryAll(true)))
	r.register("css:light", EngineFunc(cssQueryAll(false)))
	r.register("xpath", EngineFunc(xpathQueryAll))
	r.register("xpath:light", EngineFunc(xpathQueryAll))
	r.register("text", EngineFunc(textQueryAll(true)))
	r.register("text:light", EngineFunc(textQueryAll(false)))
	r.register("_react", EngineFunc(frameworkQueryAll("react", true)))
	r.register("_react:light", EngineFunc(frameworkQueryAll("react", false)))
	r.register("_vue", EngineFunc(frameworkQueryAll("vue", true)))
	r.register("_vue:light", EngineFunc(frameworkQueryAll("vue", false)))

	for _, attr := range []string{"id", "data-testid", "data-test-id", "data-test"} {
		attr := attr
		r.register(attr, EngineFunc(attrQueryAll(attr, true)))
		r.register(attr+":light", EngineFunc(attrQueryAll(attr, false)))
	}

	// nth/visible are pseudo-engines; register no-op producers so Has()
	// reports them as known without the evaluator ever invoking QueryAll.
	r.register("nth", EngineFunc(func(Node, string, Environment) ([]Node, error) { return nil, nil }))
	r.register("visible", EngineFunc(func(Node, string, Environment) ([]Node, error) { return nil, nil }))

	for name, eng := range opts.CustomEngines {
		r.register(name, eng)
	}

	return r
}

func (r *Registry) register(name string, e Engine) { r.engines[name] = e }

// Extend registers an additional engine at runtime (spec §6 `extend`).
func (r *Registry) Extend(name string, e Engine) error {
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("engine %q already registered", name)
	}
	r.register(name, e)
	return nil
}

// Has reports whether name is a known engine key.
func (r *Registry) Has(name string) bool {
	_, ok := r.engines[name]
	return ok
}

func (r *Registry) engine(name string) (Engine, bool) {
	e, ok := r.engines[name]
	return e, ok
}

func (r *Registry) isPseudo(name string) bool { return pseudoEngines[name] }

// StableRafCount returns the number of consecutive same-rect animation
// frames required before an element is declared stable (spec §4.B, §4.E).
func (r *Registry) StableRafCount() int { return r.stableRafCount }
