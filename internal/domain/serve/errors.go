package serve

import "errors"

var (
	ErrDisabled = errors.New("media serving is disabled")
	ErrAuth     = errors.New("missing or invalid media token")
)
