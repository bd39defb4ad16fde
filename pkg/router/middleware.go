package router

import (
	"github.com/turbomcp/turbomcp/pkg/logger"
	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
)

// BeforeHook runs before a method's handler is invoked. Returning an error
// aborts dispatch when the chain's AbortOnRequestError policy is set; the
// hook's error becomes the Response's error.
type BeforeHook func(ctx *reqcontext.RequestContext, env protocol.Envelope) error

// AfterHook runs after a handler produced resp; after hooks do not run for
// Notifications, which have no Response.
// It may mutate resp's Result/Err in place via the pointer, and must not
// reorder or duplicate the handler call
type AfterHook func(ctx *reqcontext.RequestContext, env protocol.Envelope, resp *protocol.Envelope) error

// NamedBeforeHook and NamedAfterHook pair a hook with a name for logging
// and ordering diagnostics, mirroring the teacher's named-middleware
// convention (pkg/transport/proxy/common.NamedMiddleware).
type NamedBeforeHook struct {
	Name string
	Hook BeforeHook
}

type NamedAfterHook struct {
	Name string
	Hook AfterHook
}

// Chain is the before/after middleware pipeline wrapped around every
// dispatched method call
type Chain struct {
	before []NamedBeforeHook
	after  []NamedAfterHook

	bypass                  map[string]bool
	abortOnRequestError     bool
	continueOnResponseError bool
}

// NewChain builds an empty middleware chain. Defaults match the typical
// policy: abort dispatch on a before-hook error, log (but don't surface)
// after-hook errors, and bypass initialize/ping/notifications/initialized.
func NewChain() *Chain {
	return &Chain{
		bypass: map[string]bool{
			protocol.MethodInitialize:  true,
			protocol.MethodPing:        true,
			protocol.MethodInitialized: true,
		},
		abortOnRequestError:     true,
		continueOnResponseError: true,
	}
}

// Use appends a before hook, run in registration order.
func (c *Chain) Use(name string, h BeforeHook) *Chain {
	c.before = append(c.before, NamedBeforeHook{Name: name, Hook: h})
	return c
}

// UseAfter appends an after hook. After hooks run in reverse registration
// order, so the most recently added after hook
// sees the response first.
func (c *Chain) UseAfter(name string, h AfterHook) *Chain {
	c.after = append(c.after, NamedAfterHook{Name: name, Hook: h})
	return c
}

// WithBypass replaces the bypass method list entirely.
func (c *Chain) WithBypass(methods ...string) *Chain {
	c.bypass = make(map[string]bool, len(methods))
	for _, m := range methods {
		c.bypass[m] = true
	}
	return c
}

// WithAbortOnRequestError sets whether a before-hook error aborts dispatch
// (true) or is ignored and dispatch proceeds (false).
func (c *Chain) WithAbortOnRequestError(abort bool) *Chain {
	c.abortOnRequestError = abort
	return c
}

// WithContinueOnResponseError sets whether an after-hook error is swallowed
// (true, logged only) or overwrites the response with an error (false).
func (c *Chain) WithContinueOnResponseError(continueOnErr bool) *Chain {
	c.continueOnResponseError = continueOnErr
	return c
}

func (c *Chain) runBefore(ctx *reqcontext.RequestContext, env protocol.Envelope) error {
	if c.bypass[env.Method] {
		return nil
	}
	for _, nh := range c.before {
		if err := nh.Hook(ctx, env); err != nil {
			if c.abortOnRequestError {
				return err
			}
		}
	}
	return nil
}

func (c *Chain) runAfter(ctx *reqcontext.RequestContext, env protocol.Envelope, resp *protocol.Envelope) {
	if c.bypass[env.Method] || resp == nil {
		return
	}
	for i := len(c.after) - 1; i >= 0; i-- {
		nh := c.after[i]
		if err := nh.Hook(ctx, env, resp); err != nil {
			if c.continueOnResponseError {
				logger.Warn("after-hook failed", "hook", nh.Name, "method", env.Method, "error", err)
				continue
			}
			errObj := protocol.ErrorObjectFromError(err)
			*resp = protocol.NewErrorResponse(resp.ID, errObj)
		}
	}
}
