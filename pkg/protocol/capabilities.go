package protocol

// ServerCapabilities is the capability record a server declares at
// initialize: which of tools/prompts/resources/logging/completions/
// experimental it supports, each with sub-flags
type ServerCapabilities struct {
	Tools        *ToolsCapability     `json:"tools,omitempty"`
	Prompts      *PromptsCapability   `json:"prompts,omitempty"`
	Resources    *ResourcesCapability `json:"resources,omitempty"`
	Logging      *struct{}            `json:"logging,omitempty"`
	Completions  *struct{}            `json:"completions,omitempty"`
	Experimental map[string]any       `json:"experimental,omitempty"`
}

// ToolsCapability declares tool support and whether list_changed
// notifications are emitted.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability declares prompt support and list_changed behavior.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability declares resource support, list_changed, and
// subscribe behavior.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// ClientCapabilities is the capability record a client declares at
// initialize: roots/sampling/elicitation/experimental.
type ClientCapabilities struct {
	Roots        *RootsCapability `json:"roots,omitempty"`
	Sampling     *struct{}        `json:"sampling,omitempty"`
	Elicitation  *struct{}        `json:"elicitation,omitempty"`
	Experimental map[string]any   `json:"experimental,omitempty"`
}

// RootsCapability declares root-listing support and list_changed behavior.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// HasTools reports whether the server capability set includes tools.
func (c *ServerCapabilities) HasTools() bool { return c != nil && c.Tools != nil }

// HasPrompts reports whether the server capability set includes prompts.
func (c *ServerCapabilities) HasPrompts() bool { return c != nil && c.Prompts != nil }

// HasResources reports whether the server capability set includes resources.
func (c *ServerCapabilities) HasResources() bool { return c != nil && c.Resources != nil }

// ResourcesSubscribable reports whether resources/subscribe is advertised.
func (c *ServerCapabilities) ResourcesSubscribable() bool {
	return c.HasResources() && c.Resources.Subscribe
}

// HasSampling reports whether the client capability set includes sampling.
func (c *ClientCapabilities) HasSampling() bool { return c != nil && c.Sampling != nil }

// HasElicitation reports whether the client capability set includes elicitation.
func (c *ClientCapabilities) HasElicitation() bool { return c != nil && c.Elicitation != nil }

// HasRoots reports whether the client capability set includes roots.
func (c *ClientCapabilities) HasRoots() bool { return c != nil && c.Roots != nil }

// Implementation identifies a client or server by name and version, carried
// in InitializeRequest/InitializeResult
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the params of an initialize Request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the result of a successful initialize Response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}
