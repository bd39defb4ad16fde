// Package router implements the per-method handler registry and dispatcher
// shared by both roles in an MCP connection: a server dispatching
// tools/resources/prompts/completions/logging/ping, and a client
// dispatching the server-initiated sampling/elicitation/roots/ping
// requests it receives. Registration is one-time at construction so
// dispatch stays lock-free
package router

import (
	"encoding/json"
	"sort"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
)

// DefaultPageSize bounds how many items a single */list response returns
// before handing back a cursor for the next page.
const DefaultPageSize = 50

// ToolEntry pairs a Tool's metadata with the handler invoked on tools/call.
type ToolEntry struct {
	Tool    protocol.Tool
	Handler func(ctx *reqcontext.RequestContext, args json.RawMessage) (protocol.ToolsCallResult, error)
}

// PromptEntry pairs a Prompt's metadata with its resolution handler.
type PromptEntry struct {
	Prompt  protocol.Prompt
	Handler func(ctx *reqcontext.RequestContext, args map[string]string) (protocol.PromptsGetResult, error)
}

// ResourceEntry pairs a Resource's metadata with its read handler.
type ResourceEntry struct {
	Resource protocol.Resource
	Handler  func(ctx *reqcontext.RequestContext, uri string) (protocol.ResourcesReadResult, error)
}

// CompletionHandler resolves completion/complete.
type CompletionHandler func(ctx *reqcontext.RequestContext, params protocol.CompletionCompleteParams) (protocol.CompletionResult, error)

// LoggingSetLevelHandler handles logging/setLevel.
type LoggingSetLevelHandler func(ctx *reqcontext.RequestContext, level protocol.LoggingLevel) error

// RootsListHandler handles an inbound roots/list request (client role).
type RootsListHandler func(ctx *reqcontext.RequestContext) (protocol.RootsListResult, error)

// SamplingCreateMessageHandler handles an inbound sampling/createMessage
// request (client role).
type SamplingCreateMessageHandler func(ctx *reqcontext.RequestContext, params protocol.SamplingCreateMessageParams) (protocol.SamplingCreateMessageResult, error)

// ElicitationCreateHandler handles an inbound elicitation/create request
// (client role).
type ElicitationCreateHandler func(ctx *reqcontext.RequestContext, params protocol.ElicitationCreateParams) (protocol.ElicitationCreateResult, error)

// PingHandler handles a ping request. The default implementation (used when none is registered) returns an empty result.
type PingHandler func(ctx *reqcontext.RequestContext) error

// Registry is the immutable-after-construction handler table. Build one
// with NewRegistry and the With* methods, then pass it to New;
// mutating it after a Router has started dispatching is not supported.
type Registry struct {
	tools                map[string]ToolEntry
	toolOrder            []string
	toolsListChanged     bool
	prompts              map[string]PromptEntry
	promptOrder          []string
	promptsListChanged   bool
	resources            map[string]ResourceEntry
	resourceOrder        []string
	resourcesListChanged bool
	resourcesSubscribe   bool
	resourceTemplates    []protocol.ResourceTemplate

	completion CompletionHandler
	setLevel   LoggingSetLevelHandler
	rootsList  RootsListHandler
	sampling   SamplingCreateMessageHandler
	elicit     ElicitationCreateHandler
	ping       PingHandler

	serverInfo      protocol.Implementation
	protocolVersion string
	instructions    string
}

// DefaultProtocolVersion is the protocol version reported in
// InitializeResult; no With* method overrides it.
const DefaultProtocolVersion = "2025-06-18"

// NewRegistry builds an empty Registry; use the With* methods to populate it.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]ToolEntry),
		prompts:   make(map[string]PromptEntry),
		resources: make(map[string]ResourceEntry),
	}
}

// WithTool registers a tool; registering a name again replaces its entry.
// tools/list returns tools sorted by name.
func (r *Registry) WithTool(entry ToolEntry) *Registry {
	if _, exists := r.tools[entry.Tool.Name]; !exists {
		r.toolOrder = append(r.toolOrder, entry.Tool.Name)
	}
	r.tools[entry.Tool.Name] = entry
	return r
}

// WithToolsListChanged declares that this server emits
// notifications/tools/list_changed.
func (r *Registry) WithToolsListChanged() *Registry {
	r.toolsListChanged = true
	return r
}

// WithPrompt registers a prompt.
func (r *Registry) WithPrompt(entry PromptEntry) *Registry {
	if _, exists := r.prompts[entry.Prompt.Name]; !exists {
		r.promptOrder = append(r.promptOrder, entry.Prompt.Name)
	}
	r.prompts[entry.Prompt.Name] = entry
	return r
}

// WithPromptsListChanged declares notifications/prompts/list_changed support.
func (r *Registry) WithPromptsListChanged() *Registry {
	r.promptsListChanged = true
	return r
}

// WithResource registers a resource.
func (r *Registry) WithResource(entry ResourceEntry) *Registry {
	if _, exists := r.resources[entry.Resource.URI]; !exists {
		r.resourceOrder = append(r.resourceOrder, entry.Resource.URI)
	}
	r.resources[entry.Resource.URI] = entry
	return r
}

// WithResourcesListChanged declares notifications/resources/list_changed support.
func (r *Registry) WithResourcesListChanged() *Registry {
	r.resourcesListChanged = true
	return r
}

// WithResourcesSubscribe declares resources/subscribe support.
func (r *Registry) WithResourcesSubscribe() *Registry {
	r.resourcesSubscribe = true
	return r
}

// WithResourceTemplate registers a resource template listed by
// resources/templates/list.
func (r *Registry) WithResourceTemplate(tmpl protocol.ResourceTemplate) *Registry {
	r.resourceTemplates = append(r.resourceTemplates, tmpl)
	return r
}

// WithCompletion installs the completion/complete handler.
func (r *Registry) WithCompletion(h CompletionHandler) *Registry {
	r.completion = h
	return r
}

// WithLoggingSetLevel installs the logging/setLevel handler.
func (r *Registry) WithLoggingSetLevel(h LoggingSetLevelHandler) *Registry {
	r.setLevel = h
	return r
}

// WithRootsList installs the roots/list handler (client role).
func (r *Registry) WithRootsList(h RootsListHandler) *Registry {
	r.rootsList = h
	return r
}

// WithSampling installs the sampling/createMessage handler (client role).
func (r *Registry) WithSampling(h SamplingCreateMessageHandler) *Registry {
	r.sampling = h
	return r
}

// WithElicitation installs the elicitation/create handler (client role).
func (r *Registry) WithElicitation(h ElicitationCreateHandler) *Registry {
	r.elicit = h
	return r
}

// WithPing overrides the default empty-result ping handler.
func (r *Registry) WithPing(h PingHandler) *Registry {
	r.ping = h
	return r
}

// WithServerInfo sets the Implementation and instructions reported in
// InitializeResult.
func (r *Registry) WithServerInfo(info protocol.Implementation, instructions string) *Registry {
	r.serverInfo = info
	r.instructions = instructions
	return r
}

// ServerCapabilities derives the capability record to declare at
// initialize from what was registered
func (r *Registry) ServerCapabilities() protocol.ServerCapabilities {
	var caps protocol.ServerCapabilities
	if len(r.tools) > 0 {
		caps.Tools = &protocol.ToolsCapability{ListChanged: r.toolsListChanged}
	}
	if len(r.prompts) > 0 {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: r.promptsListChanged}
	}
	if len(r.resources) > 0 {
		caps.Resources = &protocol.ResourcesCapability{
			ListChanged: r.resourcesListChanged,
			Subscribe:   r.resourcesSubscribe,
		}
	}
	if r.setLevel != nil {
		caps.Logging = &struct{}{}
	}
	if r.completion != nil {
		caps.Completions = &struct{}{}
	}
	return caps
}

// ClientCapabilities derives the client-side capability record from what
// server-initiated handlers were installed.
func (r *Registry) ClientCapabilities() protocol.ClientCapabilities {
	var caps protocol.ClientCapabilities
	if r.rootsList != nil {
		caps.Roots = &protocol.RootsCapability{}
	}
	if r.sampling != nil {
		caps.Sampling = &struct{}{}
	}
	if r.elicit != nil {
		caps.Elicitation = &struct{}{}
	}
	return caps
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
