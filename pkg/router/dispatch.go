package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
	"github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

// Router dispatches a decoded envelope to the matching registered handler,
// running it through the middleware chain It
// implements the Dispatcher interface consumed by pkg/transport/
// streamablehttp.Server and by the stdio/socket connection loops.
type Router struct {
	registry *Registry
	chain    *Chain
	pageSize int
}

// New builds a Router over registry. A nil chain installs an empty
// (no-op) Chain with spec-default bypass methods.
func New(registry *Registry, chain *Chain) *Router {
	if chain == nil {
		chain = NewChain()
	}
	return &Router{registry: registry, chain: chain, pageSize: DefaultPageSize}
}

// WithPageSize overrides the default page size used by */list pagination.
func (rt *Router) WithPageSize(n int) *Router {
	if n > 0 {
		rt.pageSize = n
	}
	return rt
}

// Dispatch validates, middleware-wraps, and invokes the handler for env,
// returning the Response to send (nil for a Notification, which never produces one).
func (rt *Router) Dispatch(ctx context.Context, env protocol.Envelope) (*protocol.Envelope, error) {
	rc := reqcontext.New(ctx, env.ID)

	if err := rt.chain.runBefore(rc, env); err != nil {
		if env.Kind == protocol.KindNotification {
			return nil, nil
		}
		errObj := protocol.ErrorObjectFromError(err)
		resp := protocol.NewErrorResponse(env.ID, errObj)
		return &resp, nil
	}

	result, herr := rt.safeInvoke(rc, env)

	if env.Kind == protocol.KindNotification {
		return nil, nil
	}

	var resp protocol.Envelope
	if herr != nil {
		resp = protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(herr))
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			resp = protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(
				tmcperrors.NewInternalError("failed to marshal result", err)))
		} else {
			resp = protocol.NewResultResponse(env.ID, raw)
		}
	}

	rt.chain.runAfter(rc, env, &resp)
	return &resp, nil
}

// safeInvoke calls invoke with a recover guarding the call: a handler
// panic (tool/prompt/resource/sampling/elicitation code is caller-supplied
// and out of this module's control) must not unwind past Dispatch, since
// an unrecovered panic in a per-request goroutine takes the whole process
// down with it. It surfaces as a bounded InternalError instead, the same
// outcome as any other uncaught handler failure.
func (rt *Router) safeInvoke(ctx *reqcontext.RequestContext, env protocol.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tmcperrors.NewInternalError(fmt.Sprintf("handler panicked: %v", r), nil)
		}
	}()
	return rt.invoke(ctx, env)
}

// invoke routes env to its typed handler, returning the result to
// marshal into the Response. Unknown methods map to -32601
func (rt *Router) invoke(ctx *reqcontext.RequestContext, env protocol.Envelope) (any, error) {
	switch env.Method {
	case protocol.MethodInitialize:
		return rt.dispatchInitialize()
	case protocol.MethodPing:
		return rt.dispatchPing(ctx)
	case protocol.MethodToolsList:
		return rt.dispatchToolsList(env.Params)
	case protocol.MethodToolsCall:
		return rt.dispatchToolsCall(ctx, env.Params)
	case protocol.MethodPromptsList:
		return rt.dispatchPromptsList(env.Params)
	case protocol.MethodPromptsGet:
		return rt.dispatchPromptsGet(ctx, env.Params)
	case protocol.MethodResourcesList:
		return rt.dispatchResourcesList(env.Params)
	case protocol.MethodResourceTemplatesList:
		return rt.dispatchResourceTemplatesList()
	case protocol.MethodResourcesRead:
		return rt.dispatchResourcesRead(ctx, env.Params)
	case protocol.MethodResourcesSubscribe, protocol.MethodResourcesUnsubscribe:
		return rt.dispatchResourcesSubscribe(env.Params)
	case protocol.MethodCompletionComplete:
		return rt.dispatchCompletion(ctx, env.Params)
	case protocol.MethodLoggingSetLevel:
		return rt.dispatchSetLevel(ctx, env.Params)
	case protocol.MethodRootsList:
		return rt.dispatchRootsList(ctx)
	case protocol.MethodSamplingCreateMessage:
		return rt.dispatchSampling(ctx, env.Params)
	case protocol.MethodElicitationCreate:
		return rt.dispatchElicitation(ctx, env.Params)
	default:
		return nil, tmcperrors.NewMethodNotFoundError("unknown method "+env.Method, nil)
	}
}

func (rt *Router) dispatchInitialize() (any, error) {
	version := rt.registry.protocolVersion
	if version == "" {
		version = DefaultProtocolVersion
	}
	return protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    rt.registry.ServerCapabilities(),
		ServerInfo:      rt.registry.serverInfo,
		Instructions:    rt.registry.instructions,
	}, nil
}

func (rt *Router) dispatchPing(ctx *reqcontext.RequestContext) (any, error) {
	if rt.registry.ping != nil {
		if err := rt.registry.ping(ctx); err != nil {
			return nil, err
		}
	}
	return struct{}{}, nil
}

func (rt *Router) dispatchToolsList(params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)

	names := sortedCopy(rt.registry.toolOrder)
	page, next := paginate(names, decodeCursor(p.Cursor), rt.pageSize)

	tools := make([]protocol.Tool, 0, len(page))
	for _, name := range page {
		tools = append(tools, rt.registry.tools[name].Tool)
	}
	return protocol.ToolsListResult{Tools: tools, NextCursor: next}, nil
}

func (rt *Router) dispatchToolsCall(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	var p protocol.ToolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid tools/call params", err)
	}
	entry, ok := rt.registry.tools[p.Name]
	if !ok {
		return nil, tmcperrors.NewMethodNotFoundError("no such tool "+p.Name, nil)
	}
	return entry.Handler(ctx, p.Arguments)
}

func (rt *Router) dispatchPromptsList(params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)

	names := sortedCopy(rt.registry.promptOrder)
	page, next := paginate(names, decodeCursor(p.Cursor), rt.pageSize)

	prompts := make([]protocol.Prompt, 0, len(page))
	for _, name := range page {
		prompts = append(prompts, rt.registry.prompts[name].Prompt)
	}
	return protocol.PromptsListResult{Prompts: prompts, NextCursor: next}, nil
}

func (rt *Router) dispatchPromptsGet(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	var p protocol.PromptsGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid prompts/get params", err)
	}
	entry, ok := rt.registry.prompts[p.Name]
	if !ok {
		return nil, tmcperrors.NewMethodNotFoundError("no such prompt "+p.Name, nil)
	}
	return entry.Handler(ctx, p.Arguments)
}

func (rt *Router) dispatchResourcesList(params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)

	names := sortedCopy(rt.registry.resourceOrder)
	page, next := paginate(names, decodeCursor(p.Cursor), rt.pageSize)

	resources := make([]protocol.Resource, 0, len(page))
	for _, uri := range page {
		resources = append(resources, rt.registry.resources[uri].Resource)
	}
	return protocol.ResourcesListResult{Resources: resources, NextCursor: next}, nil
}

func (rt *Router) dispatchResourceTemplatesList() (any, error) {
	return protocol.ResourceTemplatesListResult{ResourceTemplates: rt.registry.resourceTemplates}, nil
}

func (rt *Router) dispatchResourcesRead(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	var p protocol.ResourcesReadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid resources/read params", err)
	}
	entry, ok := rt.registry.resources[p.URI]
	if !ok {
		return nil, tmcperrors.NewNotFoundError("no such resource "+p.URI, nil)
	}
	return entry.Handler(ctx, p.URI)
}

func (rt *Router) dispatchResourcesSubscribe(params json.RawMessage) (any, error) {
	var p protocol.ResourcesSubscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid subscribe params", err)
	}
	if !rt.registry.resourcesSubscribe {
		return nil, tmcperrors.NewCapabilityError("resources/subscribe not advertised", nil)
	}
	return struct{}{}, nil
}

func (rt *Router) dispatchCompletion(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	if rt.registry.completion == nil {
		return nil, tmcperrors.NewMethodNotFoundError("completion/complete not registered", nil)
	}
	var p protocol.CompletionCompleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid completion/complete params", err)
	}
	result, err := rt.registry.completion(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(result.Values) > protocol.MaxCompletionValues {
		result.Values = result.Values[:protocol.MaxCompletionValues]
	}
	return protocol.CompletionCompleteResult{Completion: result}, nil
}

func (rt *Router) dispatchSetLevel(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	if rt.registry.setLevel == nil {
		return nil, tmcperrors.NewMethodNotFoundError("logging/setLevel not registered", nil)
	}
	var p protocol.LoggingSetLevelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid logging/setLevel params", err)
	}
	if err := rt.registry.setLevel(ctx, p.Level); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (rt *Router) dispatchRootsList(ctx *reqcontext.RequestContext) (any, error) {
	if rt.registry.rootsList == nil {
		return nil, tmcperrors.NewMethodNotFoundError("roots/list not registered", nil)
	}
	return rt.registry.rootsList(ctx)
}

func (rt *Router) dispatchSampling(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	if rt.registry.sampling == nil {
		return nil, tmcperrors.NewMethodNotFoundError("sampling/createMessage not registered", nil)
	}
	var p protocol.SamplingCreateMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid sampling/createMessage params", err)
	}
	return rt.registry.sampling(ctx, p)
}

func (rt *Router) dispatchElicitation(ctx *reqcontext.RequestContext, params json.RawMessage) (any, error) {
	if rt.registry.elicit == nil {
		return nil, tmcperrors.NewMethodNotFoundError("elicitation/create not registered", nil)
	}
	var p protocol.ElicitationCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, tmcperrors.NewInvalidArgumentError("invalid elicitation/create params", err)
	}
	return rt.registry.elicit(ctx, p)
}
