// rpc.go — the JSON-RPC façade over Instance (spec §6), marshaling through
// the teacher's existing internal/mcp envelope types so the interact tool
// can issue locator calls (resolve/waitFor/fill/selectOptions/selectText/
// focusNode/setInputFiles/checkHitTarget/dispatchEvent/expect) through the
// same JSONRPCRequest/JSONRPCResponse/MCPToolResult/StructuredError shapes
// it already uses for every other tool call.
package locator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/dev-console/dev-console/internal/mcp"
)

// Router dispatches JSON-RPC requests against a fixed set of Instances keyed
// by session ID, the way the teacher's ToolHandler dispatches MCP tool calls
// by name.
type Router struct {
	instances map[string]*Instance
}

// NewRouter builds an empty Router; Register adds sessions to it.
func NewRouter() *Router {
	return &Router{instances: map[string]*Instance{}}
}

// Register makes inst reachable by its own SessionID for subsequent calls.
func (r *Router) Register(inst *Instance) {
	r.instances[inst.SessionID()] = inst
}

// Unregister drops a session, e.g. once its document/frame navigates away.
func (r *Router) Unregister(sessionID string) {
	delete(r.instances, sessionID)
}

// rpcParams is the common envelope every locator RPC method accepts: a
// session to resolve against, a selector, and an optional timeout.
type rpcParams struct {
	SessionID  string          `json:"sessionId"`
	Selector   string          `json:"selector"`
	Strict     bool            `json:"strict"`
	Value      string          `json:"value,omitempty"`
	TimeoutMs  int             `json:"timeoutMs,omitempty"`
	Expression string          `json:"expression,omitempty"`
	Negated    bool            `json:"negated,omitempty"`
	Count      int             `json:"count,omitempty"`
	Text       string          `json:"text,omitempty"`

	Options   []optionParam `json:"options,omitempty"`
	Files     []fileParam   `json:"files,omitempty"`
	Point     *pointParam   `json:"point,omitempty"`
	EventType string        `json:"eventType,omitempty"`
	EventInit *EventInit    `json:"eventInit,omitempty"`
}

// optionParam is one requested <option> for locator.selectOptions, the wire
// shape of an OptionMatcher's {value?, label?, index?} conjunction.
type optionParam struct {
	Value *string `json:"value,omitempty"`
	Label *string `json:"label,omitempty"`
	Index *int    `json:"index,omitempty"`
}

// fileParam is one requested file for locator.setInputFiles; Data is
// base64-encoded since JSON-RPC params carry text, not raw bytes.
type fileParam struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// pointParam is a viewport coordinate for locator.checkHitTarget.
type pointParam struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Handle dispatches one JSON-RPC request to its locator operation, returning
// a JSONRPCResponse whose Result is always an MCPToolResult-shaped payload
// (success or StructuredErrorResponse), matching every other dev-console
// tool's response contract.
func (r *Router) Handle(ctx context.Context, req mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	var p rpcParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return r.errorResponse(req, mcp.ErrInvalidJSON, "params must be a JSON object", "Re-send params as a JSON object")
		}
	}

	inst, ok := r.instances[p.SessionID]
	if !ok {
		return r.errorResponse(req, mcp.ErrNotInitialized, "unknown sessionId", "Call locator.open to create a session first", mcp.WithParam("sessionId"))
	}

	switch req.Method {
	case "locator.resolve":
		node, found, err := inst.ResolveSelector(p.Selector, p.Strict)
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		if !found {
			return r.okResponse(req, map[string]any{"found": false})
		}
		return r.okResponse(req, map[string]any{"found": true, "preview": previewNode(node)})

	case "locator.waitFor":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		_, node, err := inst.WaitForSelector(ctx, p.Selector, p.Strict, DefaultScheduler())
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"preview": previewNode(node)})

	case "locator.fill":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		result, err := inst.Fill(ctx, p.Selector, p.Value, DefaultScheduler())
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"result": result})

	case "locator.selectOptions":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		matchers := make([]OptionMatcher, len(p.Options))
		for i, o := range p.Options {
			matchers[i] = OptionMatcher{Value: o.Value, Label: o.Label, Index: o.Index}
		}
		selected, err := inst.SelectOptions(ctx, p.Selector, matchers, DefaultScheduler())
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"selected": selected})

	case "locator.selectText":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		if err := inst.SelectText(ctx, p.Selector, DefaultScheduler()); err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"result": ResultDone})

	case "locator.focusNode":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		if err := inst.FocusNode(ctx, p.Selector, DefaultScheduler()); err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"result": ResultDone})

	case "locator.setInputFiles":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		files := make([]FilePayload, len(p.Files))
		for i, f := range p.Files {
			data, err := base64.StdEncoding.DecodeString(f.Data)
			if err != nil {
				return r.errorResponse(req, mcp.ErrInvalidParam, "files[].data must be base64", "Re-encode the file payload as base64", mcp.WithParam("files"))
			}
			files[i] = FilePayload{Name: f.Name, MimeType: f.MimeType, Data: data}
		}
		if err := inst.SetInputFiles(ctx, p.Selector, files, DefaultScheduler()); err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"result": ResultDone})

	case "locator.checkHitTarget":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		if p.Point == nil {
			return r.errorResponse(req, mcp.ErrInvalidParam, "point is required", "Supply a {x, y} point", mcp.WithParam("point"))
		}
		result, err := inst.CheckHitTargetAt(ctx, p.Selector, struct{ X, Y float64 }{p.Point.X, p.Point.Y}, DefaultScheduler())
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"hit": result.Hit, "message": result.Message})

	case "locator.dispatchEvent":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		if err := inst.DispatchEvent(ctx, p.Selector, p.EventType, p.EventInit, DefaultScheduler()); err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"result": ResultDone})

	case "locator.expect":
		ctx, cancel := withTimeout(ctx, p.TimeoutMs)
		defer cancel()
		exp := Expectation{Expression: p.Expression, Negated: p.Negated, Count: p.Count}
		if p.Text != "" {
			exp.Text = []ExpectedTextMatcher{{Mode: TextMatchSubstring, Expected: p.Text, NormalizeWS: true}}
		}
		_, pass, value, err := inst.Expect(ctx, p.Selector, exp, DefaultScheduler())
		if err != nil {
			return r.locatorErrorResponse(req, err)
		}
		return r.okResponse(req, map[string]any{"pass": pass, "value": value})

	default:
		return r.errorResponse(req, mcp.ErrUnknownMode, "unknown locator method: "+req.Method,
			"Use one of locator.resolve, locator.waitFor, locator.fill, locator.selectOptions, "+
				"locator.selectText, locator.focusNode, locator.setInputFiles, locator.checkHitTarget, "+
				"locator.dispatchEvent, or locator.expect")
	}
}

// withTimeout translates an RPC "timeoutMs" (0 = use ctx as-is) into a
// derived context, mirroring the teacher's own fast/slow/blocking tool-call
// timeout taxonomy (internal/bridge.ToolCallTimeout).
func withTimeout(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
}

func (r *Router) okResponse(req mcp.JSONRPCRequest, metadata map[string]any) mcp.JSONRPCResponse {
	result := mcp.MCPToolResult{
		Content:  []mcp.MCPContentBlock{{Type: "text", Text: "ok"}},
		Metadata: metadata,
	}
	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: mcp.SafeMarshal(result, `{"content":[{"type":"text","text":"Internal error"}],"isError":true}`)}
}

// locatorErrorResponse translates a *LocatorError's Kind into the matching
// StructuredError code, preserving its Message as the user-facing text.
func (r *Router) locatorErrorResponse(req mcp.JSONRPCRequest, err error) mcp.JSONRPCResponse {
	lerr, ok := err.(*LocatorError)
	if !ok {
		return r.errorResponse(req, mcp.ErrInternal, err.Error(), "This is not retryable without changing the request")
	}
	switch lerr.Kind {
	case KindSelectorSyntax:
		return r.errorResponse(req, mcp.ErrInvalidParam, lerr.Message, "Fix the selector and retry", mcp.WithParam("selector"))
	case KindStrictViolation:
		return r.errorResponse(req, mcp.ErrInvalidParam, lerr.Message, "Narrow the selector to match exactly one element", mcp.WithParam("selector"))
	case KindTypeMismatch, KindFillValue:
		return r.errorResponse(req, mcp.ErrInvalidParam, lerr.Message, "Fix the value/target and retry", mcp.WithParam("value"))
	case KindUnknownAssert:
		return r.errorResponse(req, mcp.ErrInvalidParam, lerr.Message, "Use a supported expect expression", mcp.WithParam("expression"))
	default:
		return r.errorResponse(req, mcp.ErrInternal, lerr.Message, "Not retryable without changing the request")
	}
}

func (r *Router) errorResponse(req mcp.JSONRPCRequest, code, message, retry string, opts ...func(*mcp.StructuredError)) mcp.JSONRPCResponse {
	return mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  mcp.StructuredErrorResponse(code, message, retry, opts...),
	}
}
