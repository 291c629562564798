// SPDX-License-Identifier: MIT

package qr

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Options tune artifact rendering. Zero values select the defaults the
// dashboard expects (256px, quality 90).
type Options struct {
	Size    int // edge length in pixels
	Quality int // JPEG quality, 1-100
}

const (
	defaultSize    = 256
	defaultQuality = 90
)

// Artifact is a rendered pairing credential image.
type Artifact struct {
	Data   []byte
	Format Format
	MIME   string
	Size   string // e.g. "256x256"
}

// Renderer turns a pairing payload into an image artifact. Rendering is
// deterministic for identical inputs and may fail.
type Renderer interface {
	Render(payload string, format Format, opts Options) (Artifact, error)
}

// CodeRenderer renders QR artifacts with medium error correction.
type CodeRenderer struct{}

// Render implements Renderer.
func (CodeRenderer) Render(payload string, format Format, opts Options) (Artifact, error) {
	if payload == "" {
		return Artifact{}, fmt.Errorf("qr: empty payload")
	}
	size := opts.Size
	if size <= 0 {
		size = defaultSize
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}

	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return Artifact{}, fmt.Errorf("qr: encode payload: %w", err)
	}

	var data []byte
	switch format {
	case FormatPNG:
		data, err = code.PNG(size)
		if err != nil {
			return Artifact{}, fmt.Errorf("qr: render png: %w", err)
		}
	case FormatJPEG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, code.Image(size), &jpeg.Options{Quality: quality}); err != nil {
			return Artifact{}, fmt.Errorf("qr: render jpeg: %w", err)
		}
		data = buf.Bytes()
	case FormatSVG:
		data = renderSVG(code.Bitmap(), size)
	default:
		return Artifact{}, fmt.Errorf("qr: unsupported format %q", format)
	}

	return Artifact{
		Data:   data,
		Format: format,
		MIME:   format.MIME(),
		Size:   fmt.Sprintf("%dx%d", size, size),
	}, nil
}

// renderSVG emits one rect per dark module, scaled into a size×size viewport.
// The bitmap from go-qrcode already includes its quiet-zone border.
func renderSVG(bitmap [][]bool, size int) []byte {
	modules := len(bitmap)
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		size, size, modules, modules)
	b.WriteString(`<rect width="100%" height="100%" fill="#FFFFFF"/>`)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="1" height="1" fill="#000000"/>`, x, y)
			}
		}
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
