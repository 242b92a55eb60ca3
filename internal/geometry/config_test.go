package geometry

import (
	"encoding/json"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BoundaryType
		wantErr bool
	}{
		{name: "horizontal", input: `{"type":"horizontal","y":100}`, want: BoundaryHorizontal},
		{name: "vertical", input: `{"type":"vertical","x":320}`, want: BoundaryVertical},
		{name: "custom", input: `{"type":"custom","line_points":[[0,0],[10,0]]}`, want: BoundarySegment},
		{name: "implicit custom", input: `{"line_points":[[0,0],[10,5]]}`, want: BoundarySegment},
		{name: "horizontal missing y", input: `{"type":"horizontal","x":3}`, wantErr: true},
		{name: "vertical missing x", input: `{"type":"vertical"}`, wantErr: true},
		{name: "custom one point", input: `{"type":"custom","line_points":[[0,0]]}`, wantErr: true},
		{name: "custom short point", input: `{"type":"custom","line_points":[[0,0],[1]]}`, wantErr: true},
		{name: "custom degenerate", input: `{"type":"custom","line_points":[[4,4],[4,4]]}`, wantErr: true},
		{name: "unknown type", input: `{"type":"diagonal"}`, wantErr: true},
		{name: "missing type", input: `{}`, wantErr: true},
		{name: "not json", input: `{type:`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBoundary([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidBoundary)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Type())
		})
	}
}

func TestParseBoundary_HorizontalClassifies(t *testing.T) {
	b, err := ParseBoundary([]byte(`{"type":"horizontal","y":100}`))
	require.NoError(t, err)

	assert.Equal(t, SideTop, b.SideOf(r2.Point{X: 5, Y: 50}))
	assert.Equal(t, SideBottom, b.SideOf(r2.Point{X: 5, Y: 150}))
}

func TestBoundaryConfigRoundTrip(t *testing.T) {
	seg, err := Segment(r2.Point{X: 1, Y: 2}, r2.Point{X: 3, Y: 4})
	require.NoError(t, err)

	for _, b := range []Boundary{Horizontal(12), Vertical(7), seg} {
		data, err := json.Marshal(b.Config())
		require.NoError(t, err)

		got, err := ParseBoundary(data)
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
}
