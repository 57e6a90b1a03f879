package valuation

import "errors"

var (
	ErrCategoryMismatch = errors.New("valuation categories do not cover the item universe")
	ErrSubsetSize       = errors.New("invalid auction subset size")
)
