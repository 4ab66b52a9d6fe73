package sharing

import (
	"context"
	"sync"
)

// PermissionGate negotiates access to the device location.
type PermissionGate interface {
	EnsurePermission(ctx context.Context) (bool, error)
}

// PermissionFunc adapts a function to PermissionGate.
type PermissionFunc func(ctx context.Context) (bool, error)

func (f PermissionFunc) EnsurePermission(ctx context.Context) (bool, error) {
	return f(ctx)
}

// StaticPermission always answers with its own value.
type StaticPermission bool

func (p StaticPermission) EnsurePermission(context.Context) (bool, error) {
	return bool(p), nil
}

// OncePermission remembers a grant for the lifetime of the process so the
// wrapped gate prompts at most once per missing permission. Denials are not
// remembered.
type OncePermission struct {
	gate PermissionGate

	mu      sync.Mutex
	granted bool
}

func NewOncePermission(gate PermissionGate) *OncePermission {
	return &OncePermission{gate: gate}
}

func (o *OncePermission) EnsurePermission(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.granted {
		return true, nil
	}
	ok, err := o.gate.EnsurePermission(ctx)
	if err != nil {
		return false, err
	}
	o.granted = ok
	return ok, nil
}

// Granted reports whether a grant has been cached.
func (o *OncePermission) Granted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.granted
}
