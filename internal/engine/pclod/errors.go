package pclod

import "errors"

var (
	// ErrInvalidFormat wraps every structural error of a terrain header or manifest.
	ErrInvalidFormat = errors.New("pclod: invalid terrain format")
	// ErrMixedZoneSizes is returned when zones of a terrain span different cell counts.
	ErrMixedZoneSizes = errors.New("pclod: zones of different sizes are not supported")
	// ErrNotLoaded is returned by operations that need a loaded terrain.
	ErrNotLoaded = errors.New("pclod: terrain not loaded")
	// ErrAlreadyLoaded is returned when Load is called twice.
	ErrAlreadyLoaded = errors.New("pclod: terrain already loaded")
)
