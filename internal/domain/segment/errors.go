package segment

import "errors"

// Sentinel kinds for segmentation errors.
var (
	ErrInvalidBounds = errors.New("invalid minisector boundaries")
)
