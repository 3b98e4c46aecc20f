// evaluator.go — Component C: the query evaluator.
// Resolves a ParsedSelector against a root node: per-part engine invocation,
// capture propagation, nth/visible pseudo-engine filtering, per-call
// (element, partIndex) caching, strict-mode uniqueness and dedup-by-identity.
package locator

import (
	"fmt"
	"strconv"
)

// ElementMatch pairs a final element with the capture element selected for
// it, if any (spec §3).
type ElementMatch struct {
	Element Node
	Capture Node
	hasCap  bool
}

// Result returns the projected element: Capture if set, else Element.
func (m ElementMatch) Result() Node {
	if m.hasCap {
		return m.Capture
	}
	return m.Element
}

// Evaluator resolves selectors against Registry's engines. Begin/End bracket
// a single top-level call so a computed-style cache (or similar opportunistic
// cache) can be scoped and torn down even on early-return error paths.
type Evaluator struct {
	registry *Registry
	env      Environment
}

// NewEvaluator builds an Evaluator over registry's engines and env.
func NewEvaluator(registry *Registry, env Environment) *Evaluator {
	return &Evaluator{registry: registry, env: env}
}

// queryCache is scoped to a single querySelector/querySelectorAll call.
type queryCache struct {
	byElementPart map[cacheKey][]Node
}

type cacheKey struct {
	element interface{}
	part    int
}

func newQueryCache() *queryCache {
	return &queryCache{byElementPart: map[cacheKey][]Node{}}
}

// begin/end bracket a call; begin returns the teardown func.
func (e *Evaluator) begin() (*queryCache, func()) {
	c := newQueryCache()
	return c, func() {}
}

// QuerySelectorAll resolves sel against root and returns every captured
// element, deduplicated by identity in first-encounter order (spec §3, §8
// property 4).
func (e *Evaluator) QuerySelectorAll(sel ParsedSelector, root Node) ([]Node, error) {
	cache, end := e.begin()
	defer end()

	matches, err := e.resolve(sel, root, cache)
	if err != nil {
		return nil, err
	}

	seen := map[interface{}]bool{}
	var out []Node
	for _, m := range matches {
		r := m.Result()
		if r.raw == nil || seen[r.raw] {
			continue
		}
		seen[r.raw] = true
		out = append(out, r)
	}
	return out, nil
}

// QuerySelector resolves sel against root. If strict, more than one distinct
// final element raises a strict-violation error previewing up to 10 matches
// (spec §4.C, §8 property 2). Returns (Node{}, false, nil) when nothing matches.
func (e *Evaluator) QuerySelector(sel ParsedSelector, root Node, strict bool) (Node, bool, error) {
	cache, end := e.begin()
	defer end()

	matches, err := e.resolve(sel, root, cache)
	if err != nil {
		return Node{}, false, err
	}
	if len(matches) == 0 {
		return Node{}, false, nil
	}

	seen := map[interface{}]bool{}
	var distinct []Node
	for _, m := range matches {
		r := m.Result()
		if r.raw == nil || seen[r.raw] {
			continue
		}
		seen[r.raw] = true
		distinct = append(distinct, r)
	}

	if strict && len(distinct) > 1 {
		return Node{}, false, strictViolation(formatStrictViolation(sel.Raw, distinct))
	}
	return distinct[0], true, nil
}

func formatStrictViolation(selector string, matches []Node) string {
	previewCount := len(matches)
	if previewCount > 10 {
		previewCount = 10
	}
	msg := fmt.Sprintf("strict mode violation: %q resolved to %d elements", selector, len(matches))
	for i := 0; i < previewCount; i++ {
		msg += fmt.Sprintf("\n    %d) %s", i+1, previewNode(matches[i]))
	}
	return msg
}

// resolve runs the full part-by-part traversal described in spec §4.C.
func (e *Evaluator) resolve(sel ParsedSelector, root Node, cache *queryCache) ([]ElementMatch, error) {
	working := []ElementMatch{{Element: root}}

	for idx, part := range sel.Parts {
		var next []ElementMatch
		switch part.Engine {
		case "nth":
			filtered, err := applyNth(working, part.Body, sel.Capture, idx)
			if err != nil {
				return nil, err
			}
			next = filtered

		case "visible":
			filtered, err := applyVisible(working, part.Body, e.env)
			if err != nil {
				return nil, err
			}
			next = filtered

		default:
			eng, ok := e.registry.engine(part.Engine)
			if !ok {
				return nil, newStacklessError(fmt.Sprintf("unknown engine %q", part.Engine))
			}
			for _, m := range working {
				key := cacheKey{element: m.Element.raw, part: idx}
				results, cached := cache.byElementPart[key]
				if !cached {
					r, err := eng.QueryAll(m.Element, part.Body, e.env)
					if err != nil {
						return nil, err
					}
					results = r
					cache.byElementPart[key] = results
				}
				for _, r := range results {
					nm := ElementMatch{Element: r}
					if m.hasCap {
						nm.Capture, nm.hasCap = m.Capture, true
					}
					if sel.Capture >= 0 && sel.Capture == idx-1 {
						nm.Capture, nm.hasCap = m.Element, true
					}
					next = append(next, nm)
				}
			}
		}
		working = next
	}

	return working, nil
}

// applyNth implements the nth pseudo-engine: "0" (first), "-1" (last), or a
// non-negative index among the *distinct* elements currently in the working
// set. A capture mark preceding nth is rejected at parse time already; this
// is a defense-in-depth re-check.
func applyNth(working []ElementMatch, arg string, captureIdx, partIdx int) ([]ElementMatch, error) {
	if captureIdx >= 0 && captureIdx < partIdx {
		return nil, newStacklessError("* capture mark cannot precede an nth= part")
	}

	distinct := distinctByElement(working)
	if len(distinct) == 0 {
		return nil, nil
	}

	switch arg {
	case "0":
		return []ElementMatch{distinct[0]}, nil
	case "-1":
		return []ElementMatch{distinct[len(distinct)-1]}, nil
	default:
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return nil, newStacklessError(fmt.Sprintf("invalid nth= argument %q", arg))
		}
		// Preserves the source's documented quirk (spec §9 open question):
		// a positive index selects by rank among first-encounter-order
		// distinct elements; behavior is unspecified if duplicates are
		// interleaved in a way that changes rank assignment, and this
		// implementation does not attempt to "fix" that — see DESIGN.md.
		if n >= len(distinct) {
			return nil, nil
		}
		return []ElementMatch{distinct[n]}, nil
	}
}

func distinctByElement(working []ElementMatch) []ElementMatch {
	seen := map[interface{}]bool{}
	var out []ElementMatch
	for _, m := range working {
		if m.Element.raw == nil || seen[m.Element.raw] {
			continue
		}
		seen[m.Element.raw] = true
		out = append(out, m)
	}
	return out
}

// applyVisible implements the visible pseudo-engine: filters the working set
// by isVisible truthiness compared against the body token.
func applyVisible(working []ElementMatch, bodyArg string, env Environment) ([]ElementMatch, error) {
	want := !(bodyArg == "false" || bodyArg == "0" || bodyArg == "")
	var out []ElementMatch
	for _, m := range working {
		if isVisible(m.Element, env) == want {
			out = append(out, m)
		}
	}
	return out, nil
}
