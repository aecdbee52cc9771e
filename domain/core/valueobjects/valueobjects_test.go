package valueobjects

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeIDFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid uuid", "2f6a1b4e-9d0c-4b8a-8d0e-1c2b3a4d5e6f", false},
		{"empty", "", true},
		{"not a uuid", "node-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewNodeIDFromString(tt.input)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestNodeID_JSON(t *testing.T) {
	id := NewNodeID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded NodeID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, id.Equals(decoded))

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`12`), &decoded))
}

func TestNodeIDsFromStrings_KeepsOrderAndDuplicates(t *testing.T) {
	a, b := NewNodeID(), NewNodeID()
	raw := []string{b.String(), a.String(), b.String()}

	ids, err := NodeIDsFromStrings(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, NodeIDStrings(ids))

	_, err = NodeIDsFromStrings([]string{a.String(), "bad"})
	assert.Error(t, err)
}

func TestNewIdeaID(t *testing.T) {
	_, err := NewIdeaID("idea-42")
	assert.NoError(t, err)

	for _, bad := range []string{"", "   ", "a#b", "a/b", strings.Repeat("x", MaxIdeaIDLength+1)} {
		_, err := NewIdeaID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewPosition(t *testing.T) {
	p, err := NewPosition(100, -50.5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.X())
	assert.Equal(t, -50.5, p.Y())

	_, err = NewPosition(math.NaN(), 0)
	assert.Error(t, err)
	_, err = NewPosition(0, math.Inf(1))
	assert.Error(t, err)

	moved, err := p.Translate(1, 1)
	require.NoError(t, err)
	assert.True(t, moved.Equals(Position{x: 101, y: -49.5}))
}

func TestNewSize(t *testing.T) {
	s, err := NewSize(200, 100)
	require.NoError(t, err)
	assert.Equal(t, 200.0, s.Width())

	_, err = NewSize(0, 100)
	assert.Error(t, err)
	_, err = s.WithHeight(-1)
	assert.Error(t, err)

	wider, err := s.WithWidth(320)
	require.NoError(t, err)
	assert.Equal(t, 320.0, wider.Width())
	assert.Equal(t, 100.0, wider.Height())
}
