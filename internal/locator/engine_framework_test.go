package locator

import (
	"testing"

	"github.com/dev-console/dev-console/internal/locator/domtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameworkEngine_ReactMarkerMatchesByReactroot(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body>
		<div data-reactroot="" id="app"><span id="child">hi</span></div>
		<div id="plain">bye</div>
	</body></html>`)

	query := frameworkQueryAll("react", false)
	matches, err := query(root, "", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "app", attrOrEmpty(matches[0], "id"))
}

func TestFrameworkEngine_ReactComponentNameFiltersByDataComponent(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body>
		<div data-reactid="1" data-component="Header" id="a"></div>
		<div data-reactid="2" data-component="Footer" id="b"></div>
	</body></html>`)

	query := frameworkQueryAll("react", false)
	matches, err := query(root, "Header", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", attrOrEmpty(matches[0], "id"))
}

func TestFrameworkEngine_VueMarkerMatchesByScopedAttr(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body>
		<div data-v-7ba5bd90 id="widget">v</div>
		<div id="plain">not vue</div>
	</body></html>`)

	query := frameworkQueryAll("vue", false)
	matches, err := query(root, "", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "widget", attrOrEmpty(matches[0], "id"))
}

func TestFrameworkEngine_UnknownFrameworkMatchesNothing(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><div data-reactroot="" id="app"></div></body></html>`)

	query := frameworkQueryAll("svelte", false)
	matches, err := query(root, "", nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func attrOrEmpty(n Node, name string) string {
	v, _ := n.Attr(name)
	return v
}
