package cropt

import (
	"errors"

	"github.com/menta2k/cropt/pkg/layout"
)

var (
	// ErrContainerBound is returned by New for a container that already hosts a cropper
	ErrContainerBound = layout.ErrContainerBound
	// ErrEmptySource is returned by Bind for an empty source
	ErrEmptySource = errors.New("src cannot be empty")
	// ErrInvalidRotation is returned for angles that are not a multiple of 90
	ErrInvalidRotation = errors.New("invalid rotation")
	// ErrSurfaceUnavailable is returned when no output surface can be created
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
	// ErrNotBound is returned by operations that need a bound image
	ErrNotBound = errors.New("no image bound")
	// ErrSuperseded is returned by a bind or rotation overtaken by a newer one
	ErrSuperseded = errors.New("operation superseded by a newer bind or rotation")
	// ErrDestroyed is returned after Destroy
	ErrDestroyed = errors.New("cropper destroyed")
	// ErrInvalidPreset is returned by ParsePreset for malformed input
	ErrInvalidPreset = errors.New("invalid preset")
	// ErrDisabled is returned by gestures turned off in the options
	ErrDisabled = errors.New("gesture disabled by options")
)
