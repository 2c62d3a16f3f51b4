package codec

import "errors"

var (
	ErrTruncated      = errors.New("codec: input truncated")
	ErrTrailingBytes  = errors.New("codec: trailing bytes after value")
	ErrLengthTooLarge = errors.New("codec: length prefix exceeds limit")
)
