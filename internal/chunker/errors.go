package chunker

import "errors"

var ErrInvalidConfig = errors.New("invalid chunker configuration")
