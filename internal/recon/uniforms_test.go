package recon

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestUniformsPackLayout(t *testing.T) {
	u := Uniforms{
		Fx: 500, Fy: 501, Cx: 320, Cy: 240,
		CullMin: 0.25, CullMax: 8, XCull: 3, YCull: 2,
		Width: 640, Height: 480,
		Model: Identity(), ViewProj: Identity(),
	}
	packed := u.Pack()
	require.Len(t, packed, UniformsSize)

	back, ok := UnpackUniforms(packed)
	require.True(t, ok)
	if diff := cmp.Diff(u, back); diff != "" {
		t.Errorf("uniforms round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpackUniformsRejectsShortInput(t *testing.T) {
	_, ok := UnpackUniforms(make([]byte, UniformsSize-1))
	require.False(t, ok)
}
