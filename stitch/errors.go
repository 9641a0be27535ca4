package stitch

import "errors"

var (
	errNoInputs     = errors.New("at least one input is required")
	errInvalidBoxes = errors.New("edit-box list violates invariants")
)
