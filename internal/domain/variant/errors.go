package variant

import "errors"

var (
	ErrInvalidPath  = errors.New("invalid media path")
	ErrUnresolvable = errors.New("variant token cannot be resolved")
)
