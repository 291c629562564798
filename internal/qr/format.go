// SPDX-License-Identifier: MIT

package qr

import (
	"fmt"
	"strings"
)

// Format is a supported rendering format for the pairing artifact.
type Format string

const (
	FormatPNG  Format = "PNG"
	FormatJPEG Format = "JPEG"
	FormatSVG  Format = "SVG"
)

// DefaultFormat is used when a caller does not request a specific format
// and as the fallback when a requested format fails to render.
const DefaultFormat = FormatPNG

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatPNG:
		return FormatPNG, nil
	case FormatJPEG:
		return FormatJPEG, nil
	case FormatSVG:
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("qr: unsupported format %q (want PNG, JPEG or SVG)", s)
	}
}

// MIME returns the media type of the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatSVG:
		return "image/svg+xml"
	default:
		return "image/png"
	}
}
