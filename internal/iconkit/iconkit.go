// Package iconkit is C12: it renders a single replacement source image
// down into the full set of conventional iOS app-icon filenames and
// writes them directly into the bundle, so a resign that swaps the icon
// doesn't need Xcode's asset compiler.
package iconkit

import (
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/nfnt/resize"
)

// Sizes maps each iOS icon filename Replace writes to its pixel
// dimension. Only some of these names (e.g. Icon-60@2x.png,
// AppIcon60x60@2x.png) are in assetdetect's conventional-name list; the
// rest are seen by change detection only when Info.plist names them.
var Sizes = map[string]int{
	"Icon-20@1x.png":      20,
	"Icon-20@2x.png":      40,
	"Icon-20@3x.png":      60,
	"Icon-29@1x.png":      29,
	"Icon-29@2x.png":      58,
	"Icon-29@3x.png":      87,
	"Icon-40@1x.png":      40,
	"Icon-40@2x.png":      80,
	"Icon-40@3x.png":      120,
	"Icon-60@2x.png":      120,
	"Icon-60@3x.png":      180,
	"Icon-76@1x.png":      76,
	"Icon-76@2x.png":      152,
	"Icon-83.5@2x.png":    167,
	"Icon-1024.png":       1024,
	"AppIcon60x60@2x.png": 120,
	"AppIcon60x60@3x.png": 180,
}

// Replace decodes sourceImagePath, resizes it to every entry in Sizes
// using Lanczos3 resampling, and writes each result as a PNG directly
// under bundleDir (conventional icon files live at the bundle root, the
// same place assetdetect.HasChanged looks for them). Callers
// are responsible for calling assetdetect.ForceAssetsCarRegeneration and
// forcing a resign afterward, since this only touches loose icon files.
func Replace(sourceImagePath, bundleDir string) error {
	f, err := os.Open(sourceImagePath)
	if err != nil {
		return ipasignerr.New("iconkit.Replace", ipasignerr.KindIOFailure, sourceImagePath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return ipasignerr.New("iconkit.Replace", ipasignerr.KindIOFailure, sourceImagePath, err)
	}

	for name, size := range Sizes {
		resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
		if err := writePNG(filepath.Join(bundleDir, name), resized); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return ipasignerr.New("iconkit.writePNG", ipasignerr.KindIOFailure, path, err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		return ipasignerr.New("iconkit.writePNG", ipasignerr.KindIOFailure, path, err)
	}
	return nil
}
