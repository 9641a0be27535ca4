package remux

import "errors"

// errUnsupportedHandler marks a track whose handler type or sample
// entry this package does not know how to remux (anything other than
// vide/avc1 or soun/mp4a). Such tracks are silently skipped rather
// than failing the whole file, mirroring how a player ignores tracks
// it cannot decode.
var errUnsupportedHandler = errors.New("remux: unsupported handler or sample entry")
