package model

import "errors"

// ErrMissingPrice means a pair needed for valuation has no usable price.
var ErrMissingPrice = errors.New("missing price")
