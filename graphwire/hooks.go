// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import "context"

// CallHook provides observability callpoints around driver calls.
// Implementations must be safe for concurrent use; sessions may issue calls
// from several transactions at once.
type CallHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, err error)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the CallHook that created it.
type HookToken interface{}

// CallInfo carries call metadata passed to hooks.
type CallInfo struct {
	Method    string // wire method name
	RequestID string // driver-generated request identifier
	Keyspace  string // keyspace the owning session is bound to
}

// callStart invokes the hook if one is set; hook panics never break a call.
func callStart(ctx context.Context, hook CallHook, info CallInfo) (outCtx context.Context, token HookToken) {
	outCtx = ctx
	if hook == nil {
		return
	}
	defer func() {
		if recover() != nil {
			outCtx, token = ctx, nil
		}
	}()
	outCtx, token = hook.OnCallStart(ctx, info)
	return
}

func callEnd(ctx context.Context, hook CallHook, token HookToken, info CallInfo, err error) {
	if hook == nil {
		return
	}
	defer func() { recover() }()
	hook.OnCallEnd(ctx, token, info, err)
}
