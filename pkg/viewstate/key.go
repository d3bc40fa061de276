package viewstate

import (
	"fmt"
	"strings"
)

// keyPrefix is the namespace of all view-state keys.
const keyPrefix = "panel:view"

// Key identifies the persisted state of one view in one session.
type Key struct {
	// Session is the browser session id.
	Session string

	// View is the registered view name, e.g. "transfers".
	View string
}

// String generates a deterministic Redis key.
// Format: panel:view:<view>:session=<id>
//
// Example:
//
//	panel:view:transfers:session=2f6c0d0e-7b1a-4c8e-9d55-0b3f2c1a9e44
func (k Key) String() string {
	view := strings.Trim(k.View, ":/ ")
	return fmt.Sprintf("%s:%s:session=%s", keyPrefix, view, k.Session)
}

// Validate reports whether both parts are set.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Session) == "" {
		return fmt.Errorf("%w: session is required", ErrInvalidKey)
	}
	if strings.Trim(k.View, ":/ ") == "" {
		return fmt.Errorf("%w: view is required", ErrInvalidKey)
	}
	return nil
}
