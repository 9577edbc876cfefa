package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/forge/resource"
)

func TestLayoutFingerprint(t *testing.T) {
	pos := resource.VertexAttribute{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x2, Offset: 0}
	uv := resource.VertexAttribute{ShaderLocation: 1, Format: gputypes.VertexFormatFloat32x2, Offset: 8}

	a := resource.VertexLayout{ArrayStride: 16, Attributes: []resource.VertexAttribute{pos, uv}}
	b := resource.VertexLayout{ArrayStride: 16, Attributes: []resource.VertexAttribute{pos, uv}}
	if layoutFingerprint(&a) != layoutFingerprint(&b) {
		t.Error("equal layouts must share a fingerprint")
	}

	c := a
	c.ArrayStride = 20
	if layoutFingerprint(&a) == layoutFingerprint(&c) {
		t.Error("stride change must change the fingerprint")
	}

	d := resource.VertexLayout{ArrayStride: 16, Attributes: []resource.VertexAttribute{uv, pos}}
	if layoutFingerprint(&a) == layoutFingerprint(&d) {
		t.Error("attribute order must change the fingerprint")
	}

	e := resource.VertexLayout{ArrayStride: 16, Attributes: []resource.VertexAttribute{pos}}
	if layoutFingerprint(&a) == layoutFingerprint(&e) {
		t.Error("attribute count must change the fingerprint")
	}
}

func TestVertexBuffers(t *testing.T) {
	l := resource.VertexLayout{
		ArrayStride: 24,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []resource.VertexAttribute{
			{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x3, Offset: 0},
			{ShaderLocation: 1, Format: gputypes.VertexFormatFloat32x3, Offset: 12},
		},
	}
	bufs := vertexBuffers(&l)
	if len(bufs) != 1 {
		t.Fatalf("len(bufs) = %d, want 1", len(bufs))
	}
	if bufs[0].ArrayStride != 24 || len(bufs[0].Attributes) != 2 {
		t.Errorf("layout = %+v, want stride 24 with 2 attributes", bufs[0])
	}
	if bufs[0].Attributes[1].Offset != 12 || bufs[0].Attributes[1].ShaderLocation != 1 {
		t.Errorf("attribute 1 = %+v", bufs[0].Attributes[1])
	}
}

func TestAlignCopy(t *testing.T) {
	cases := []struct{ in, want uint64 }{
		{0, 0}, {1, 4}, {3, 4}, {4, 4}, {5, 8}, {1023, 1024},
	}
	for _, c := range cases {
		if got := alignCopy(c.in); got != c.want {
			t.Errorf("alignCopy(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestTexelBytes(t *testing.T) {
	for _, f := range []gputypes.TextureFormat{
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatBGRA8Unorm,
	} {
		if got := texelBytes(f); got != 4 {
			t.Errorf("texelBytes(%v) = %d, want 4", f, got)
		}
	}
}

func TestClampU32(t *testing.T) {
	if clampU32(-5) != 0 {
		t.Error("negative must clamp to zero")
	}
	if clampU32(17) != 17 {
		t.Error("positive must pass through")
	}
}
