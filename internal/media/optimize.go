package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"

	// Register additional image formats
	_ "golang.org/x/image/webp"
)

// Quality levels to try (descending order)
var qualityLevels = []int{85, 75, 65, 55, 45}

// Dimension levels to try if resizing needed (descending order)
var dimensionLevels = []int{2000, 1600, 1200, 800}

// Optimize resizes and compresses an attached image until it fits provider
// inline-data limits. Returns the optimized ImageData or an error.
func Optimize(data []byte) (*ImageData, error) {
	mimeType := DetectMIME(data)
	if !IsSupported(mimeType) {
		return nil, fmt.Errorf("unsupported image type: %s", mimeType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Already within limits, pass through untouched
	if width <= MaxDimension && height <= MaxDimension && len(data) <= MaxBytes {
		return &ImageData{
			Data:     data,
			MimeType: mimeType,
			Width:    width,
			Height:   height,
		}, nil
	}

	return shrink(img, width, height, format)
}

// shrink tries descending dimension and quality combinations until the image
// fits within limits, keeping the smallest attempt as a fallback.
func shrink(img image.Image, origWidth, origHeight int, format string) (*ImageData, error) {
	maxDim := max(origWidth, origHeight)
	dimensions := make([]int, 0, len(dimensionLevels)+1)
	if maxDim <= MaxDimension {
		dimensions = append(dimensions, maxDim)
	} else {
		dimensions = append(dimensions, MaxDimension)
	}
	for _, d := range dimensionLevels {
		if d < dimensions[0] {
			dimensions = append(dimensions, d)
		}
	}

	var smallest *ImageData

	for _, targetDim := range dimensions {
		resized := img
		newWidth, newHeight := origWidth, origHeight
		if origWidth > targetDim || origHeight > targetDim {
			resized = imaging.Fit(img, targetDim, targetDim, imaging.Lanczos)
			bounds := resized.Bounds()
			newWidth = bounds.Dx()
			newHeight = bounds.Dy()
		}

		for _, quality := range qualityLevels {
			encoded, mimeType, err := encodeImage(resized, format, quality)
			if err != nil {
				continue
			}

			if smallest == nil || len(encoded) < len(smallest.Data) {
				smallest = &ImageData{
					Data:     encoded,
					MimeType: mimeType,
					Width:    newWidth,
					Height:   newHeight,
				}
			}

			if len(encoded) <= MaxBytes {
				return &ImageData{
					Data:     encoded,
					MimeType: mimeType,
					Width:    newWidth,
					Height:   newHeight,
				}, nil
			}
		}

		// Quality grid only applies to JPEG; other formats get one encoding
		// per dimension
		if format != "jpeg" {
			continue
		}
	}

	if smallest != nil && len(smallest.Data) > MaxBytes {
		return nil, fmt.Errorf("image could not be reduced below %dMB (got %.2fMB)",
			MaxBytes/(1024*1024), float64(len(smallest.Data))/(1024*1024))
	}
	if smallest == nil {
		return nil, fmt.Errorf("failed to optimize image")
	}
	return smallest, nil
}

// encodeImage encodes an image in the specified format with given quality
func encodeImage(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case "png":
		err := png.Encode(&buf, img)
		return buf.Bytes(), "image/png", err
	case "gif":
		err := gif.Encode(&buf, img, nil)
		return buf.Bytes(), "image/gif", err
	default:
		// JPEG, WebP input (decode-only in Go), and anything unknown all
		// re-encode as JPEG
		err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
		return buf.Bytes(), "image/jpeg", err
	}
}
