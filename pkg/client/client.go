// Package client implements the client side of one MCP connection: the
// initialize handshake, a typed operation surface layered over
// pkg/correlator, and dispatch of server-initiated inbound Requests
// (sampling/createMessage, elicitation/create, roots/list, ping) through a
// pkg/router.Registry the caller installs handlers on
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turbomcp/turbomcp/pkg/correlator"
	"github.com/turbomcp/turbomcp/pkg/logger"
	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/router"
	"github.com/turbomcp/turbomcp/pkg/tmcperrors"
	"github.com/turbomcp/turbomcp/pkg/transport"
)

// Client serves one MCP connection from the client's side: it issues
// outbound Requests through a correlator, and answers server-initiated
// inbound Requests through a router built over the caller's Registry
// (which need only install roots/sampling/elicitation/ping handlers — the same Registry/Router types a server uses).
type Client struct {
	transport  transport.Transport
	router     *router.Router
	correlator *correlator.Correlator
	maxSize    int

	writeMu sync.Mutex

	initMu      sync.RWMutex
	initialized bool
	serverCaps  *protocol.ServerCapabilities
	serverInfo  protocol.Implementation

	inFlightMu sync.Mutex
	inFlight   map[protocol.MessageId]context.CancelFunc
}

// New builds a Client over transport t, dispatching any server-initiated
// inbound Request through reg (the caller typically registers only
// WithRootsList/WithSampling/WithElicitation/WithPing on it; tool/prompt/
// resource entries are meaningless on the client role and are simply
// never invoked).
func New(t transport.Transport, reg *router.Registry) *Client {
	c := &Client{
		transport: t,
		maxSize:   protocol.DefaultMaxMessageSize,
		inFlight:  make(map[protocol.MessageId]context.CancelFunc),
	}
	c.router = router.New(reg, nil)
	c.correlator = correlator.New(senderFunc(c.sendEnvelope))
	return c
}

type senderFunc func(ctx context.Context, env protocol.Envelope) error

func (f senderFunc) Send(ctx context.Context, env protocol.Envelope) error { return f(ctx, env) }

func (c *Client) sendEnvelope(ctx context.Context, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.Send(ctx, transport.Message{Data: data})
}

// Serve runs the receive loop until ctx is done or the transport closes.
func (c *Client) Serve(ctx context.Context) error {
	defer c.correlator.Close()
	logger.Info("client connection started", "transport", c.transport.Type())
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			logger.Info("client connection ended", "error", err)
			return err
		}
		c.handleFrame(ctx, msg.Data)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	envs, err := protocol.Decode(data, c.maxSize)
	if err != nil {
		logger.Warn("discarding unparsable frame", "error", err)
		return
	}

	var wg sync.WaitGroup
	responses := make([]*protocol.Envelope, len(envs))
	for i, env := range envs {
		switch env.Kind {
		case protocol.KindResponse:
			c.correlator.HandleResponse(env)
		case protocol.KindNotification:
			c.handleNotification(ctx, env)
		case protocol.KindRequest:
			wg.Add(1)
			go func(i int, env protocol.Envelope) {
				defer wg.Done()
				responses[i] = c.handleRequest(ctx, env)
			}(i, env)
		}
	}
	wg.Wait()

	var out []protocol.Envelope
	for _, r := range responses {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return
	}
	if len(out) == 1 && len(envs) == 1 {
		_ = c.sendEnvelope(ctx, out[0])
		return
	}
	data2, err := protocol.EncodeBatch(out)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	_ = c.transport.Send(ctx, transport.Message{Data: data2})
	c.writeMu.Unlock()
}

func (c *Client) handleNotification(ctx context.Context, env protocol.Envelope) {
	if env.Method == protocol.MethodCancelled {
		var p protocol.CancelledParams
		if err := json.Unmarshal(env.Params, &p); err == nil {
			c.cancelInFlight(p.RequestID)
		}
		return
	}
	_, _ = c.router.Dispatch(ctx, env)
}

func (c *Client) handleRequest(ctx context.Context, env protocol.Envelope) *protocol.Envelope {
	reqCtx, cancel := context.WithCancel(ctx)
	if !c.trackInFlight(env.ID, cancel) {
		cancel()
		resp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(
			tmcperrors.NewInvalidRequestError("duplicate in-flight request id", nil)))
		return &resp
	}
	defer c.untrackInFlight(env.ID)
	defer cancel()

	resp, err := c.router.Dispatch(reqCtx, env)
	if err != nil {
		errResp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(err))
		return &errResp
	}
	return resp
}

// trackInFlight registers an inbound request id, reporting false if the id
// is already in flight (a duplicate id on the same direction is a protocol
// error the caller must reject).
func (c *Client) trackInFlight(id protocol.MessageId, cancel context.CancelFunc) bool {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	if _, exists := c.inFlight[id]; exists {
		return false
	}
	c.inFlight[id] = cancel
	return true
}

func (c *Client) untrackInFlight(id protocol.MessageId) {
	c.inFlightMu.Lock()
	delete(c.inFlight, id)
	c.inFlightMu.Unlock()
}

func (c *Client) cancelInFlight(id protocol.MessageId) {
	c.inFlightMu.Lock()
	cancel, ok := c.inFlight[id]
	c.inFlightMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Client) isInitialized() bool {
	c.initMu.RLock()
	defer c.initMu.RUnlock()
	return c.initialized
}

// ServerCapabilities returns the capability snapshot the server declared at
// initialize, or nil if initialize has not completed.
func (c *Client) ServerCapabilities() *protocol.ServerCapabilities {
	c.initMu.RLock()
	defer c.initMu.RUnlock()
	return c.serverCaps
}

// ServerInfo returns the server's declared Implementation.
func (c *Client) ServerInfo() protocol.Implementation {
	c.initMu.RLock()
	defer c.initMu.RUnlock()
	return c.serverInfo
}

func (c *Client) requireInitialized() error {
	if !c.isInitialized() {
		return tmcperrors.NewCapabilityError("client session not yet initialized", nil)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, tmcperrors.NewInternalError("failed to marshal request params", err)
	}
	resp, err := c.correlator.Request(ctx, method, raw)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, tmcperrors.NewInternalError(resp.Err.Message, resp.Err)
	}
	return resp.Result, nil
}

// Initialize performs the handshake: sends initialize with clientCaps and
// clientInfo, stores the server's returned capabilities/info, and on
// success sends notifications/initialized
func (c *Client) Initialize(ctx context.Context, protocolVersion string, clientCaps protocol.ClientCapabilities, clientInfo protocol.Implementation) (protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    clientCaps,
		ClientInfo:      clientInfo,
	}
	raw, err := c.request(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return protocol.InitializeResult{}, err
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return protocol.InitializeResult{}, tmcperrors.NewInternalError("invalid initialize result", err)
	}

	c.initMu.Lock()
	c.initialized = true
	caps := result.Capabilities
	c.serverCaps = &caps
	c.serverInfo = result.ServerInfo
	c.initMu.Unlock()

	if err := c.sendEnvelope(ctx, protocol.NewNotification(protocol.MethodInitialized, nil)); err != nil {
		return result, tmcperrors.NewTransportError("failed to send notifications/initialized", err)
	}
	return result, nil
}

// ListTools issues tools/list, paging via cursor (empty for the first page).
func (c *Client) ListTools(ctx context.Context, cursor string) (protocol.ToolsListResult, error) {
	var out protocol.ToolsListResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodToolsList, struct {
		Cursor string `json:"cursor,omitempty"`
	}{cursor})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// CallTool issues tools/call for name with args already marshaled to JSON.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (protocol.ToolsCallResult, error) {
	var out protocol.ToolsCallResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodToolsCall, protocol.ToolsCallParams{Name: name, Arguments: args})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ListPrompts issues prompts/list.
func (c *Client) ListPrompts(ctx context.Context, cursor string) (protocol.PromptsListResult, error) {
	var out protocol.PromptsListResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodPromptsList, struct {
		Cursor string `json:"cursor,omitempty"`
	}{cursor})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// GetPrompt issues prompts/get.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (protocol.PromptsGetResult, error) {
	var out protocol.PromptsGetResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodPromptsGet, protocol.PromptsGetParams{Name: name, Arguments: args})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ListResources issues resources/list.
func (c *Client) ListResources(ctx context.Context, cursor string) (protocol.ResourcesListResult, error) {
	var out protocol.ResourcesListResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodResourcesList, struct {
		Cursor string `json:"cursor,omitempty"`
	}{cursor})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ListResourceTemplates issues resources/templates/list.
func (c *Client) ListResourceTemplates(ctx context.Context) (protocol.ResourceTemplatesListResult, error) {
	var out protocol.ResourceTemplatesListResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodResourceTemplatesList, struct{}{})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ReadResource issues resources/read.
func (c *Client) ReadResource(ctx context.Context, uri string) (protocol.ResourcesReadResult, error) {
	var out protocol.ResourcesReadResult
	if err := c.requireInitialized(); err != nil {
		return out, err
	}
	raw, err := c.request(ctx, protocol.MethodResourcesRead, protocol.ResourcesReadParams{URI: uri})
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// Subscribe issues resources/subscribe.
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	_, err := c.request(ctx, protocol.MethodResourcesSubscribe, protocol.ResourcesSubscribeParams{URI: uri})
	return err
}

// Unsubscribe issues resources/unsubscribe.
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	_, err := c.request(ctx, protocol.MethodResourcesUnsubscribe, protocol.ResourcesSubscribeParams{URI: uri})
	return err
}

// Complete issues completion/complete against an arbitrary reference.
func (c *Client) Complete(ctx context.Context, ref protocol.CompletionReference, arg protocol.CompletionArgument, cctx *protocol.CompletionContext) (protocol.CompletionResult, error) {
	var out protocol.CompletionCompleteResult
	if err := c.requireInitialized(); err != nil {
		return out.Completion, err
	}
	raw, err := c.request(ctx, protocol.MethodCompletionComplete, protocol.CompletionCompleteParams{Ref: ref, Argument: arg, Context: cctx})
	if err != nil {
		return out.Completion, err
	}
	err = json.Unmarshal(raw, &out)
	return out.Completion, err
}

// CompletePrompt is a Complete helper carrying a ref/prompt reference.
func (c *Client) CompletePrompt(ctx context.Context, promptName string, arg protocol.CompletionArgument, cctx *protocol.CompletionContext) (protocol.CompletionResult, error) {
	return c.Complete(ctx, protocol.CompletionReference{Type: "ref/prompt", Name: promptName}, arg, cctx)
}

// CompleteResource is a Complete helper carrying a ref/resource reference.
func (c *Client) CompleteResource(ctx context.Context, uri string, arg protocol.CompletionArgument, cctx *protocol.CompletionContext) (protocol.CompletionResult, error) {
	return c.Complete(ctx, protocol.CompletionReference{Type: "ref/resource", URI: uri}, arg, cctx)
}

// SetLogLevel issues logging/setLevel.
func (c *Client) SetLogLevel(ctx context.Context, level protocol.LoggingLevel) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	_, err := c.request(ctx, protocol.MethodLoggingSetLevel, protocol.LoggingSetLevelParams{Level: level})
	return err
}

// Ping issues a liveness ping to the server.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, protocol.MethodPing, struct{}{})
	return err
}

// CancelRequest cancels a pending outbound request by id and notifies the
// server via notifications/cancelled
func (c *Client) CancelRequest(ctx context.Context, id protocol.MessageId, reason string) bool {
	ok := c.correlator.Cancel(id)
	if ok {
		raw, _ := json.Marshal(protocol.CancelledParams{RequestID: id, Reason: reason})
		_ = c.sendEnvelope(ctx, protocol.NewNotification(protocol.MethodCancelled, raw))
	}
	return ok
}
