package valueobjects

import (
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// MaxIdeaIDLength bounds the owning idea reference.
const MaxIdeaIDLength = 128

// IdeaID references the idea (board) that owns a set of nodes. The format
// is owned by the idea service, so any non-blank string is accepted.
type IdeaID struct {
	value string
}

// NewIdeaID validates an idea reference.
func NewIdeaID(id string) (IdeaID, error) {
	if strings.TrimSpace(id) == "" {
		return IdeaID{}, pkgerrors.NewValidationError("idea ID cannot be empty")
	}
	if utf8.RuneCountInString(id) > MaxIdeaIDLength {
		return IdeaID{}, pkgerrors.NewValidationError("idea ID is too long")
	}
	if strings.ContainsAny(id, "#/") {
		return IdeaID{}, pkgerrors.NewValidationError("idea ID cannot contain '#' or '/'")
	}
	return IdeaID{value: id}, nil
}

func (id IdeaID) String() string {
	return id.value
}

func (id IdeaID) Equals(other IdeaID) bool {
	return id.value == other.value
}

func (id IdeaID) IsZero() bool {
	return id.value == ""
}
