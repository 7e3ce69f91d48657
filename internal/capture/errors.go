package capture

import (
	"errors"

	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

var (
	// ErrConnection means the compositor is unreachable or lacks a required global.
	ErrConnection = errors.New("compositor connection failed")
	// ErrUnsupportedFormat means no advertised buffer format can be converted.
	ErrUnsupportedFormat = pixel.ErrUnsupportedFormat
	ErrInvalidRegion     = errors.New("invalid capture region")
	ErrNotFound          = errors.New("output not found")
	// ErrCaptureFailed means the compositor reported the copy as failed.
	ErrCaptureFailed = errors.New("compositor failed to copy frame")
	ErrAllocation    = shm.ErrAllocation
	// ErrProtocol means the compositor sent events out of order.
	ErrProtocol = errors.New("screencopy protocol violation")
)
