package iconkit

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSourcePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	for y := 0; y < 512; y++ {
		for x := 0; x < 512; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestReplaceWritesEveryConventionalSize(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "source.png")
	writeSourcePNG(t, src)

	bundleDir := filepath.Join(tmp, "Demo.app")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))

	require.NoError(t, Replace(src, bundleDir))

	for name := range Sizes {
		require.FileExists(t, filepath.Join(bundleDir, name))
	}
}

func TestReplaceRejectsMissingSource(t *testing.T) {
	tmp := t.TempDir()
	bundleDir := filepath.Join(tmp, "Demo.app")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	err := Replace(filepath.Join(tmp, "missing.png"), bundleDir)
	require.Error(t, err)
}
