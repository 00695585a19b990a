// Package trailing finds data appended after the logical end of a file.
package trailing

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/profile"
)

const previewLen = 64

type Detector struct {
	profile *profile.Profile
}

func New(p *profile.Profile) Detector {
	return Detector{profile: p}
}

// Detect looks for the last end-of-format marker of the detected type. Types
// without a known marker, or blobs without the marker, yield no finding.
func (d Detector) Detect(ctx context.Context, blob model.Blob, typ model.TypeAnalysis) (model.Result, error) {
	marker, ok := d.profile.Marker(typ.MagicType)
	if !ok {
		return model.Result{}, nil
	}
	off, length, ok := Appended(blob.Bytes(), marker)
	if !ok {
		slog.DebugContext(ctx, "no appended data", "type", typ.MagicType)
		return model.Result{}, nil
	}

	b := blob.Bytes()
	preview := b[off:min(off+previewLen, off+length)]
	f := model.NewFinding(model.KindEOFData, fmt.Sprintf(
		"Found %d bytes of extra data after the '%s' EOF marker.", length, typ.MagicType)).
		WithOffset(int64(off)).
		WithPayload(model.TrailingData{
			Length:     length,
			PreviewHex: hex.EncodeToString(preview),
		}).
		WithHint("Carve the bytes after the marker, e.g. with binwalk or dd, and analyze them separately.")
	return model.Result{Findings: []model.Finding{f}}, nil
}

// Appended returns the offset and length of bytes following the last
// occurrence of marker in b. Trailing CR/LF bytes are not counted for text
// markers. ok is false if the marker is absent or nothing follows it.
func Appended(b []byte, marker profile.Marker) (offset int, length int, ok bool) {
	if len(marker.Bytes) == 0 {
		return 0, 0, false
	}
	idx := bytes.LastIndex(b, marker.Bytes)
	if idx < 0 {
		return 0, 0, false
	}
	offset = idx + len(marker.Bytes)
	end := len(b)
	if marker.Text {
		for end > offset && (b[end-1] == '\n' || b[end-1] == '\r') {
			end--
		}
	}
	length = end - offset
	if length <= 0 {
		return 0, 0, false
	}
	return offset, length, true
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "trailing"),
	}
}
