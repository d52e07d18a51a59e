package push

import "errors"

// Permission mirrors the platform notification permission tri-state. It is
// owned by the platform; this package only observes or requests it.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

var (
	// ErrUnsupported means the platform has no notification capability at
	// all. Hard stop for the whole flow, distinct from denied.
	ErrUnsupported = errors.New("push notifications not supported")

	// ErrPermissionDenied means the user declined. Fatal until the user
	// changes the platform setting out-of-band; never re-prompt.
	ErrPermissionDenied = errors.New("notification permission denied")
)

// Platform is the capability surface a connected client reports.
type Platform interface {
	Supported() bool
	Permission() Permission
	Prompt() (Permission, error)
}

// PermissionReporter resolves the platform state for a user's most recently
// seen client, if any. Implemented by the worker gateway.
type PermissionReporter interface {
	PlatformFor(userID uint) (Platform, bool)
}

// PermissionGate queries and requests permission without ever forcing it.
type PermissionGate struct {
	platform Platform
}

func NewPermissionGate(p Platform) *PermissionGate {
	return &PermissionGate{platform: p}
}

// Query returns the current state without side effects.
func (g *PermissionGate) Query() (Permission, error) {
	if !g.platform.Supported() {
		return "", ErrUnsupported
	}
	return g.platform.Permission(), nil
}

// Request triggers the platform prompt only from the default state. Granted
// and denied are returned unchanged; denied in particular is never
// re-prompted.
func (g *PermissionGate) Request() (Permission, error) {
	if !g.platform.Supported() {
		return "", ErrUnsupported
	}
	current := g.platform.Permission()
	if current != PermissionDefault {
		return current, nil
	}
	return g.platform.Prompt()
}
