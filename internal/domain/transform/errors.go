package transform

import "errors"

var (
	ErrUnsupportedTransform = errors.New("unsupported transform")
	ErrTransform            = errors.New("transform failed")
)
