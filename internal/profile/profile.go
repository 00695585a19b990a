// Package profile holds the static lookup tables shared by the detectors:
// extension to MIME, MIME to end-of-format marker and the zip container
// equivalences. A Profile is built once and is read-only afterwards.
package profile

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/bytesleuth/sleuth/internal/model"
)

const Unknown = "unknown"

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEBMP  = "image/bmp"
	MIMETIFF = "image/tiff"
	MIMEWEBP = "image/webp"
	MIMEZIP  = "application/zip"
	MIMEPDF  = "application/pdf"

	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEPPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// Marker describes the logical end of a format.
type Marker struct {
	Bytes []byte
	// Text formats may legitimately end with newlines after the marker.
	Text bool
}

type Profile struct {
	extensions map[string]string
	markers    map[string]Marker
	zipLike    map[string]struct{}
}

// Option customizes a Profile under construction.
type Option func(*Profile)

// WithExtension maps ext (with or without the leading dot) to mime.
func WithExtension(ext, mime string) Option {
	return func(p *Profile) {
		p.extensions[normExt(ext)] = mime
	}
}

// WithMarker registers the end-of-format marker of mime.
func WithMarker(mime string, m Marker) Option {
	return func(p *Profile) {
		p.markers[mime] = Marker{Bytes: bytes.Clone(m.Bytes), Text: m.Text}
	}
}

// WithZipLike registers mime as a zip based container.
func WithZipLike(mime string) Option {
	return func(p *Profile) {
		p.zipLike[mime] = struct{}{}
	}
}

// FromConfig turns the profile section of the configuration into options.
// A nil c yields no options.
func FromConfig(c *model.Profile) ([]Option, error) {
	if c == nil {
		return nil, nil
	}
	var opts []Option
	for ext, mime := range c.Extensions {
		opts = append(opts, WithExtension(ext, mime))
	}
	for mime, h := range c.Markers {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("profile.markers.%s: invalid hex %q", mime, h)
		}
		opts = append(opts, WithMarker(mime, Marker{Bytes: b, Text: slices.Contains(c.TextMarkers, mime)}))
	}
	for _, mime := range c.ZipLike {
		opts = append(opts, WithZipLike(mime))
	}
	return opts, nil
}

// New returns the default profile extended by opts.
func New(opts ...Option) *Profile {
	p := &Profile{
		extensions: map[string]string{
			".jpg":  MIMEJPEG,
			".jpeg": MIMEJPEG,
			".png":  MIMEPNG,
			".gif":  MIMEGIF,
			".bmp":  MIMEBMP,
			".tif":  MIMETIFF,
			".tiff": MIMETIFF,
			".webp": MIMEWEBP,
			".zip":  MIMEZIP,
			".pdf":  MIMEPDF,
			".doc":  "application/msword",
			".docx": MIMEDOCX,
			".xls":  "application/vnd.ms-excel",
			".xlsx": MIMEXLSX,
			".ppt":  "application/vnd.ms-powerpoint",
			".pptx": MIMEPPTX,
		},
		markers: map[string]Marker{
			MIMEJPEG: {Bytes: []byte{0xff, 0xd9}},
			// IEND chunk type followed by its CRC
			MIMEPNG: {Bytes: []byte{0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82}},
			MIMEGIF: {Bytes: []byte{0x00, 0x3b}},
			MIMEPDF: {Bytes: []byte("%%EOF"), Text: true},
		},
		zipLike: map[string]struct{}{
			MIMEZIP:                                   {},
			MIMEDOCX:                                  {},
			MIMEXLSX:                                  {},
			MIMEPPTX:                                  {},
			"application/jar":                         {},
			"application/vnd.android.package-archive": {},
			"application/epub+zip":                    {},
			"application/vnd.oasis.opendocument.text": {},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtensionType returns the MIME type expected for ext, or Unknown.
func (p *Profile) ExtensionType(ext string) string {
	if mime, ok := p.extensions[normExt(ext)]; ok {
		return mime
	}
	return Unknown
}

// Marker returns the end-of-format marker for mime.
func (p *Profile) Marker(mime string) (Marker, bool) {
	m, ok := p.markers[mime]
	if !ok {
		return Marker{}, false
	}
	return Marker{Bytes: bytes.Clone(m.Bytes), Text: m.Text}, true
}

// IsZipLike reports whether mime is a zip container (zip itself, OOXML, jar...).
func (p *Profile) IsZipLike(mime string) bool {
	_, ok := p.zipLike[mime]
	return ok
}

// IsOOXML reports whether mime is one of the Office Open XML document types.
func IsOOXML(mime string) bool {
	return strings.HasPrefix(mime, "application/vnd.openxmlformats")
}

// IsImage reports whether mime is an image type.
func IsImage(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

func normExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
