package handle

import "testing"

func TestNilHandleIsInvalid(t *testing.T) {
	if Nil.IsValid() {
		t.Error("Nil handle should be invalid")
	}
	if Nil.Kind() != KindInvalid {
		t.Errorf("Nil.Kind() = %v, want KindInvalid", Nil.Kind())
	}
}

func TestNewRoundTrip(t *testing.T) {
	h := New(42, 7, KindTexture)
	if h.Index() != 42 {
		t.Errorf("Index() = %d, want 42", h.Index())
	}
	if h.Generation() != 7 {
		t.Errorf("Generation() = %d, want 7", h.Generation())
	}
	if h.Kind() != KindTexture {
		t.Errorf("Kind() = %v, want KindTexture", h.Kind())
	}
	if !h.IsValid() {
		t.Error("handle with nonzero generation should be valid")
	}
}

func TestZeroGenerationIsInvalid(t *testing.T) {
	h := New(3, 0, KindMesh)
	if h.IsValid() {
		t.Error("generation 0 should never be valid")
	}
}

func TestHandlesDifferByGeneration(t *testing.T) {
	a := New(5, 1, KindShader)
	b := New(5, 2, KindShader)
	if a == b {
		t.Error("handles with different generations must not be equal")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInvalid, "invalid"},
		{KindTexture, "texture"},
		{KindMesh, "mesh"},
		{KindShader, "shader"},
		{KindRenderTarget, "render_target"},
		{KindSurface, "surface"},
		{Kind(200), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
