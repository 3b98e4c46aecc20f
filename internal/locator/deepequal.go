// deepequal.go — structural equality for intermediate-result deduplication
// and the `to.have.property` / array-matcher assertions in expect.go.
// Grounded on spec §3's deepEquals description (a Go-idiomatic reading of
// Playwright's own injected deepEquals: reflexive/symmetric, NaN===NaN,
// array element-wise, RegExp by source+flags, structural otherwise).
package locator

import (
	"math"
	"reflect"
	"regexp"
)

// deepEquals implements the value-equality spec §3 names for
// SetIntermediateResult deduplication and expect.go's assertion matching.
func deepEquals(a, b any) bool {
	return deepEqualsDepth(a, b, 0)
}

const deepEqualsMaxDepth = 32

func deepEqualsDepth(a, b any, depth int) bool {
	if depth > deepEqualsMaxDepth {
		return a == nil && b == nil
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			if math.IsNaN(af) && math.IsNaN(bf) {
				return true
			}
			return af == bf
		}
		return false
	}

	if ar, aok := a.(*regexp.Regexp); aok {
		if br, bok := b.(*regexp.Regexp); bok {
			return ar.String() == br.String()
		}
		return false
	}

	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualsDepth(av[i], bv[i], depth+1) {
				return false
			}
		}
		return true

	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqualsDepth(v, bvv, depth+1) {
				return false
			}
		}
		return true

	case string:
		bv, ok := b.(string)
		return ok && av == bv

	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
