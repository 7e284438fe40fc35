package rotate

import (
	"bytes"
	"math/rand"
	"testing"
)

// s1Pixels is a small fixed fixture with distinct per-pixel bytes so
// misrotated output is easy to spot: W=4, H=2.
func s1Pixels() []byte {
	return []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12,
		13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24,
	}
}

func TestRotate90Then270RoundTrips(t *testing.T) {
	const width, height = 4, 2
	src := s1Pixels()

	rotated := make([]byte, len(src))
	rotateCPU90(rotated, src, width, height)

	restored := make([]byte, len(src))
	rotateCPU270(restored, rotated, height, width)

	if !bytes.Equal(restored, src) {
		t.Errorf("90 then 270 round trip = %v, want %v", restored, src)
	}
}

func TestRotate180MatchesScenarioS2(t *testing.T) {
	const width, height = 4, 2
	src := s1Pixels()

	want := []byte{
		22, 23, 24, 19, 20, 21, 16, 17, 18,
		13, 14, 15, 10, 11, 12, 7, 8, 9,
		4, 5, 6, 1, 2, 3,
	}

	got := make([]byte, len(src))
	rotateCPU180(got, src, width, height)

	if !bytes.Equal(got, want) {
		t.Errorf("rotateCPU180 = %v, want %v", got, want)
	}
}

func TestRotate0IsMemcpy(t *testing.T) {
	src := s1Pixels()
	dst := make([]byte, len(src))
	rotateCPU0(dst, src)
	if !bytes.Equal(dst, src) {
		t.Errorf("rotateCPU0 = %v, want %v", dst, src)
	}
}

func TestTiledRotateMatchesNaiveReference(t *testing.T) {
	for _, tc := range []struct {
		name          string
		width, height int
	}{
		{"small_non_tile_aligned", 5, 3},
		{"tile_aligned", 16, 8},
		{"single_row", 10, 1},
		{"single_column", 1, 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := make([]byte, tc.width*tc.height*bpp)
			r := rand.New(rand.NewSource(42))
			r.Read(src)

			for _, degrees := range []int{90, 270} {
				ow, oh := OutputDims(tc.width, tc.height, degrees)
				got := make([]byte, ow*oh*bpp)
				want := make([]byte, ow*oh*bpp)

				rotateCPUNaive(want, src, tc.width, tc.height, degrees)
				if degrees == 90 {
					rotateCPU90(got, src, tc.width, tc.height)
				} else {
					rotateCPU270(got, src, tc.width, tc.height)
				}

				if !bytes.Equal(got, want) {
					t.Errorf("degrees=%d: tiled output differs from naive reference", degrees)
				}
			}
		})
	}
}

func TestOutputDims(t *testing.T) {
	tests := []struct {
		degrees    int
		wantW, wantH int
	}{
		{0, 10, 20},
		{180, 10, 20},
		{90, 20, 10},
		{270, 20, 10},
	}
	for _, tt := range tests {
		w, h := OutputDims(10, 20, tt.degrees)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("OutputDims(10,20,%d) = (%d,%d), want (%d,%d)", tt.degrees, w, h, tt.wantW, tt.wantH)
		}
	}
}
