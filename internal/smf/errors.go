package smf

import "errors"

// Sentinel error kinds, per the parser's error contract: open() fails only
// with BadHeader, UnsupportedFormat or IO; a corrupt or truncated track
// ends that track without aborting the others.
var (
	ErrBadHeader         = errors.New("smf: bad header")
	ErrUnsupportedFormat = errors.New("smf: unsupported format")
	ErrUnexpectedEOT     = errors.New("smf: unexpected end of track")
	ErrCorruptEvent      = errors.New("smf: corrupt event")
	ErrInvalidTempo      = errors.New("smf: invalid tempo meta")
	ErrIO                = errors.New("smf: io error")
	ErrOutOfResources    = errors.New("smf: out of resources")
)
