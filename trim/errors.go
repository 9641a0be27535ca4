package trim

import "errors"

var (
	errDurationZero    = errors.New("duration_ms must be > 0")
	errInvalidBoxes    = errors.New("edit-box list violates invariants")
	errEmptyInput      = errors.New("empty track with non-empty edit boxes")
	errFirstDTSTooLate = errors.New("first keyframe dts is later than the trim window start")
	errNonMonotoneDTS  = errors.New("dts decreased within the trimmed sample range")
)
