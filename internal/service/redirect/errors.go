package redirect

import "errors"

// Sentinel errors for the redirect service layer.
var (
	ErrNotFound = errors.New("redirect not found")
	ErrDisabled = errors.New("redirect disabled")
)
