package callback

import (
	"context"

	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// CallContext wraps a standard context.Context with the invoked function
// name for middleware.
type CallContext interface {
	context.Context

	// FunctionName returns the name of the script function being invoked.
	FunctionName() string
}

type callContext struct {
	context.Context
	funcName string
}

// NewCallContext creates a CallContext for funcName. The returned context
// carries a request ID and the function name as its entry point.
func NewCallContext(ctx context.Context, funcName string) CallContext {
	return &callContext{
		Context:  callctx.WithEntryPoint(ctx, funcName),
		funcName: funcName,
	}
}

func (c *callContext) FunctionName() string { return c.funcName }

// CallContextFrom returns ctx if it already is a CallContext, or wraps it.
func CallContextFrom(ctx context.Context, funcName string) CallContext {
	if cc, ok := ctx.(CallContext); ok {
		return cc
	}
	return NewCallContext(ctx, funcName)
}
