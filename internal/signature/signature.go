package signature

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/profile"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// Detector identifies the content type of a blob from its leading bytes and
// cross-checks it against the type expected from the filename extension.
type Detector struct {
	profile *profile.Profile
}

func New(p *profile.Profile) Detector {
	return Detector{profile: p}
}

// Classify never fails: content that matches no signature is "unknown".
func (d Detector) Classify(blob model.Blob) model.TypeAnalysis {
	magic := MagicType(blob.Bytes())
	ext := blob.Ext()
	extType := d.profile.ExtensionType(ext)
	return model.TypeAnalysis{
		MagicType:     magic,
		Extension:     ext,
		ExtensionType: extType,
		Mismatch:      d.mismatch(magic, extType),
	}
}

// Detect turns the type analysis into findings.
func (d Detector) Detect(ctx context.Context, _ model.Blob, typ model.TypeAnalysis) (model.Result, error) {
	slog.DebugContext(ctx, "signature", "magic", typ.MagicType, "extension", typ.ExtensionType)
	if !typ.Mismatch {
		return model.Result{}, nil
	}
	f := model.NewFinding(model.KindTypeMismatch, fmt.Sprintf(
		"File extension type '%s' (from %s) does not match magic bytes type '%s'. This could be a deception.",
		typ.ExtensionType, typ.Extension, typ.MagicType)).
		WithPayload(model.TypeMismatch{Extension: typ.ExtensionType, Actual: typ.MagicType}).
		WithHint("The file extension might be deliberately misleading. Trust the magic bytes.")
	return model.Result{Findings: []model.Finding{f}}, nil
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "signature"),
	}
}

func (d Detector) mismatch(magic, extType string) bool {
	if magic == profile.Unknown || extType == profile.Unknown || magic == extType {
		return false
	}
	// office documents are zip containers
	if profile.IsOOXML(extType) && magic == profile.MIMEZIP {
		return false
	}
	if extType == profile.MIMEZIP && profile.IsOOXML(magic) {
		return false
	}
	return true
}

// MagicType returns the canonical MIME type of b without parameters, or
// profile.Unknown when no signature matches.
func MagicType(b []byte) string {
	mtype := mimetype.Detect(b)
	mime := mtype.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))
	if mime == "" || mime == octetStream {
		return profile.Unknown
	}
	return mime
}
