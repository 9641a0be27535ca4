package avmux

import "errors"

var (
	errPartialOverride = errors.New("width and height overrides must both be zero or both be positive")
	errNoVisibleVideo  = errors.New("no video sample is visible under the supplied edit boxes")
)
