package valueobjects

import (
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// Size is the display box of a node.
type Size struct {
	width  float64
	height float64
}

// NewSize requires finite, strictly positive dimensions.
func NewSize(width, height float64) (Size, error) {
	if !isFinite(width) || !isFinite(height) || width <= 0 || height <= 0 {
		return Size{}, pkgerrors.NewValidationError("invalid size: width and height must be positive numbers")
	}
	return Size{width: width, height: height}, nil
}

func (s Size) Width() float64 {
	return s.width
}

func (s Size) Height() float64 {
	return s.height
}

// WithWidth returns a copy with a new width.
func (s Size) WithWidth(width float64) (Size, error) {
	return NewSize(width, s.height)
}

// WithHeight returns a copy with a new height.
func (s Size) WithHeight(height float64) (Size, error) {
	return NewSize(s.width, height)
}
