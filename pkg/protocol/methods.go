package protocol

// Method name constants for every MCP method the core dispatches or issues,
//
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodCancelled   = "notifications/cancelled"

	MethodToolsList        = "tools/list"
	MethodToolsCall        = "tools/call"
	MethodToolsListChanged = "notifications/tools/list_changed"

	MethodPromptsList        = "prompts/list"
	MethodPromptsGet         = "prompts/get"
	MethodPromptsListChanged = "notifications/prompts/list_changed"

	MethodResourcesList         = "resources/list"
	MethodResourceTemplatesList = "resources/templates/list"
	MethodResourcesRead         = "resources/read"
	MethodResourcesSubscribe    = "resources/subscribe"
	MethodResourcesUnsubscribe  = "resources/unsubscribe"
	MethodResourcesListChanged  = "notifications/resources/list_changed"
	MethodResourcesUpdated      = "notifications/resources/updated"

	MethodCompletionComplete = "completion/complete"

	MethodLoggingSetLevel  = "logging/setLevel"
	MethodNotificationsLog = "notifications/log"

	MethodRootsList             = "roots/list"
	MethodSamplingCreateMessage = "sampling/createMessage"
	MethodElicitationCreate     = "elicitation/create"
)

// methodsAllowedBeforeInitialize lists the only methods a peer may invoke
// before initialize has completed
var methodsAllowedBeforeInitialize = map[string]bool{
	MethodInitialize:  true,
	MethodInitialized: true,
	MethodPing:        true,
	MethodCancelled:   true,
}

// AllowedBeforeInitialize reports whether method may be invoked on a
// connection whose handshake has not yet completed.
func AllowedBeforeInitialize(method string) bool {
	return methodsAllowedBeforeInitialize[method]
}
