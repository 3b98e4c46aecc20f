package locator

import (
	"testing"

	"github.com/dev-console/dev-console/internal/locator/domtest"
)

func TestFill_TextInputAssignsAndReturnsDone(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="text"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	result, err := fill(env, target, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultDone {
		t.Fatalf("expected %q, got %q", ResultDone, result)
	}
	v, _ := env.Value(target)
	if v != "hello" {
		t.Fatalf("expected value %q, got %q", "hello", v)
	}
	if len(env.Events) != 2 || env.Events[0].Type != "input" || env.Events[1].Type != "change" {
		t.Fatalf("expected input then change events, got %+v", env.Events)
	}
}

// TestFill_NumberInput matches spec §8 Scenario S5: fill("abc") on a number
// input throws "Cannot type text into input[type=number]"; fill("12") does
// not assign the value directly - it validates, focuses, selects, and
// returns needsinput for the controller to key-type.
func TestFill_NumberInput(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="number"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	_, err := fill(env, target, "abc")
	if err == nil {
		t.Fatal("expected an error for a non-numeric value on a number input")
	}
	if err.Error() != "Cannot type text into input[type=number]" {
		t.Fatalf("unexpected error message: %v", err)
	}

	result, err := fill(env, target, "12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNeedsInput {
		t.Fatalf("expected %q, got %q", ResultNeedsInput, result)
	}
	if v, ok := env.Value(target); ok && v == "12" {
		t.Fatalf("number input should not be directly assigned by fill, got value %q", v)
	}
}

func TestFill_DateInputVerifiesRoundTrip(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="date"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	result, err := fill(env, target, "  2024-01-02  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultDone {
		t.Fatalf("expected %q, got %q", ResultDone, result)
	}
	v, _ := env.Value(target)
	if v != "2024-01-02" {
		t.Fatalf("expected trimmed value, got %q", v)
	}
}

func TestFill_DisallowedInputTypeRejected(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="checkbox"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	_, err := fill(env, target, "x")
	if err == nil {
		t.Fatal("expected an error filling a checkbox input")
	}
	lerr, ok := err.(*LocatorError)
	if !ok || lerr.Kind != KindTypeMismatch {
		t.Fatalf("expected KindTypeMismatch, got %v", err)
	}
}

func TestFill_TextareaSelectsAndReturnsNeedsInput(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><textarea id="t">existing</textarea></body></html>`)
	target, _ := domtest.Find(root, "textarea", "t")
	env := domtest.New()

	result, err := fill(env, target, "new text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNeedsInput {
		t.Fatalf("expected %q, got %q", ResultNeedsInput, result)
	}
}

func TestFill_ContentEditableSelectsAndReturnsNeedsInput(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><div id="d" contenteditable="true">existing</div></body></html>`)
	target, _ := domtest.Find(root, "div", "d")
	env := domtest.New()

	result, err := fill(env, target, "new text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNeedsInput {
		t.Fatalf("expected %q, got %q", ResultNeedsInput, result)
	}
}

func TestFill_RetargetsLabelToControl(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><label id="lbl" for="i">Name</label><input id="i" type="text"/></body></html>`)
	label, _ := domtest.Find(root, "label", "lbl")
	input, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	result, err := fill(env, label, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultDone {
		t.Fatalf("expected %q, got %q", ResultDone, result)
	}
	v, _ := env.Value(input)
	if v != "hello" {
		t.Fatalf("expected fill to retarget to the label's control, got value %q", v)
	}
}

func strptr(s string) *string { return &s }

func TestSelectOptions_MatchesByLabelAndSetsEnvironmentState(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><select id="s">
		<option value="a">Alpha</option>
		<option value="b">Beta</option>
	</select></body></html>`)
	target, _ := domtest.Find(root, "select", "s")
	env := domtest.New()

	selected, ok, err := selectOptions(env, target, []OptionMatcher{{Label: strptr("Beta")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected selectOptions to report completion, not continue-polling")
	}
	if len(selected) != 1 || selected[0] != "b" {
		t.Fatalf("expected [b], got %v", selected)
	}
	if len(env.Events) != 2 || env.Events[0].Type != "input" || env.Events[1].Type != "change" {
		t.Fatalf("expected input then change events, got %+v", env.Events)
	}
}

func TestSelectOptions_UnmatchedValueContinuesPolling(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><select id="s"><option value="a">Alpha</option></select></body></html>`)
	target, _ := domtest.Find(root, "select", "s")
	env := domtest.New()

	selected, ok, err := selectOptions(env, target, []OptionMatcher{{Value: strptr("nope")}})
	if err != nil {
		t.Fatalf("expected no error for a not-yet-available option, got %v", err)
	}
	if ok {
		t.Fatal("expected ok=false (continue polling) for an unmatched option")
	}
	if selected != nil {
		t.Fatalf("expected no selected values, got %v", selected)
	}
}

// TestSelectOptions_MultipleSelectConsumesEachMatcher matches spec §4.E: a
// multi-select consumes one option per still-pending matcher rather than
// stopping at the first match.
func TestSelectOptions_MultipleSelectConsumesEachMatcher(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><select id="s" multiple>
		<option value="a">Alpha</option>
		<option value="b">Beta</option>
		<option value="c">Gamma</option>
	</select></body></html>`)
	target, _ := domtest.Find(root, "select", "s")
	env := domtest.New()

	selected, ok, err := selectOptions(env, target, []OptionMatcher{
		{Value: strptr("a")},
		{Value: strptr("c")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected both requested options to be found")
	}
	if len(selected) != 2 || selected[0] != "a" || selected[1] != "c" {
		t.Fatalf("expected [a c], got %v", selected)
	}
}

func TestSetInputFiles_RequiresFileInput(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="text"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	err := setInputFiles(env, target, []FilePayload{{Name: "a.txt"}})
	if err == nil {
		t.Fatal("expected an error installing files on a non-file input")
	}
}

func TestSetInputFiles_InstallsOnFileInput(t *testing.T) {
	t.Parallel()
	root := domtest.Parse(`<html><body><input id="i" type="file"/></body></html>`)
	target, _ := domtest.Find(root, "input", "i")
	env := domtest.New()

	files := []FilePayload{{Name: "a.txt"}}
	if err := setInputFiles(env, target, files); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
