package preview

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"photo-catalog/internal/catalog"
)

// decodeSource decodes canonical bytes without orientation correction;
// orientation comes from stored metadata, not from re-parsing EXIF here.
func decodeSource(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w: %v", catalog.ErrCodecError, err)
	}
	return img, nil
}

// applyOrientation corrects an image per its EXIF orientation value (1-8).
// Unknown values are treated as 1 (no correction).
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// resizeToFit scales the image down so its longest edge is at most
// longestEdge pixels, preserving aspect ratio. Images already smaller are
// returned unscaled; previews never upscale.
func resizeToFit(img image.Image, longestEdge int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= longestEdge && bounds.Dy() <= longestEdge {
		return img
	}
	return imaging.Fit(img, longestEdge, longestEdge, imaging.Lanczos)
}

// encodeTo writes the image in the requested format.
func encodeTo(w io.Writer, img image.Image, format catalog.Format, quality int) error {
	switch format {
	case catalog.FormatJPEG:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("encode jpeg: %w: %v", catalog.ErrCodecError, err)
		}
		return nil
	case catalog.FormatWEBP:
		data, err := encodeWEBP(img, quality)
		if err != nil {
			return fmt.Errorf("encode webp: %w: %v", catalog.ErrCodecError, err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q: %w", format, catalog.ErrInvalidInput)
}
