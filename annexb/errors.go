package annexb

import "errors"

var (
	errNoNALUs  = errors.New("no Annex-B start codes found in stream")
	errNoFrames = errors.New("stream contains no video slice NAL units")
)
