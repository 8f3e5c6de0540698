// Package media prepares attached images for upload to generation providers.
// It handles MIME detection from magic bytes and resize/recompress so a
// claim photo taken on a phone fits provider inline-data limits.
package media

import (
	"encoding/base64"

	"github.com/gabriel-vasile/mimetype"
)

// Provider inline-data limits for attached images
const (
	MaxDimension = 2000            // Max width or height in pixels
	MaxBytes     = 4 * 1024 * 1024 // 4MB max payload size
)

// Supported image MIME types for multimodal verification
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageData represents a processed image ready for a provider request
type ImageData struct {
	Data     []byte // Raw image bytes
	MimeType string // MIME type (e.g., "image/jpeg")
	Width    int    // Width in pixels
	Height   int    // Height in pixels
}

// Base64 returns the image data as a base64-encoded string
func (img *ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Size returns the size in bytes
func (img *ImageData) Size() int {
	return len(img.Data)
}

// IsWithinLimits returns true if the image meets provider inline limits
func (img *ImageData) IsWithinLimits() bool {
	return img.Width <= MaxDimension &&
		img.Height <= MaxDimension &&
		len(img.Data) <= MaxBytes
}

// DetectMIME returns the MIME type from magic bytes (not file extension)
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsSupported returns true if the MIME type can be attached to a request
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[mimeType]
}
