// Package imageinspect decodes raster images, collects their embedded
// metadata and measures the randomness of the least significant bit planes.
package imageinspect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/bytesleuth/sleuth/internal/entropy"
	"github.com/bytesleuth/sleuth/internal/model"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels guards against decompression bombs.
const MaxPixels = 1 << 27

const hintLSB = "Use a steganography tool like zsteg, stegsolve, or an online LSB extractor to retrieve the hidden data."

type Detector struct {
	threshold float64
}

func New(threshold float64) Detector {
	return Detector{threshold: threshold}
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "image"),
		slog.Float64("threshold", d.threshold),
	}
}

// Detect reports an undecodable image as a single warning and skips all
// other checks in that case.
func (d Detector) Detect(ctx context.Context, blob model.Blob, _ model.TypeAnalysis) (model.Result, error) {
	b := blob.Bytes()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return invalid(err), nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return invalid(fmt.Errorf("%dx%d pixels exceed the decoding limit", cfg.Width, cfg.Height)), nil
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return invalid(err), nil
	}
	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}

	embedded := model.NewMetadata()
	var exifErr error
	switch format {
	case "png":
		if raw := pngChunks(b, embedded); raw != nil {
			exifErr = exifTags(raw, embedded)
		}
	case "jpeg":
		if raw := jpegSegments(b, embedded); raw != nil {
			exifErr = exifTags(raw, embedded)
		}
	case "tiff":
		exifErr = exifTags(b, embedded)
	case "gif":
		gifBlocks(b, embedded)
	}
	if exifErr != nil {
		slog.DebugContext(ctx, "no exif", "format", format, "error", exifErr)
	}

	var res model.Result
	if embedded.Len() > 0 {
		res.Findings = append(res.Findings, model.NewFinding(model.KindImageMetadata,
			"Found metadata in the image file.").WithPayload(embedded))
	}

	md := model.NewMetadata()
	md.Set("format", format)
	md.Set("width", fmt.Sprintf("%d", cfg.Width))
	md.Set("height", fmt.Sprintf("%d", cfg.Height))
	md.Set("mode", Mode(img))
	md = md.Merge(embedded)

	planes, ok := ExtractPlanes(img)
	if !ok {
		reason := fmt.Sprintf("image mode '%s' is not supported, only RGB images are", Mode(img))
		res.Findings = append(res.Findings, model.NewFinding(model.KindLSBSkipped,
			"LSB analysis was skipped: "+reason).
			WithPayload(model.ImageError{Reason: reason}))
		res.Metadata = md
		return res, nil
	}

	stats := planes.Stats()
	md.Set("lsb_entropy", fmt.Sprintf("%.4f", stats.Entropy))
	md.Set("lsb_entropy_r", fmt.Sprintf("%.4f", stats.R))
	md.Set("lsb_entropy_g", fmt.Sprintf("%.4f", stats.G))
	md.Set("lsb_entropy_b", fmt.Sprintf("%.4f", stats.B))
	res.Metadata = md
	res.Findings = append(res.Findings, d.lsbFinding(stats))

	slog.DebugContext(ctx, "image inspected", "format", format, "lsb_entropy", stats.Entropy)
	return res, nil
}

func (d Detector) lsbFinding(s PlaneStats) model.Finding {
	payload := model.LSBStats{
		Entropy: fmt.Sprintf("%.4f", s.Entropy),
		Channels: map[string]string{
			"r": fmt.Sprintf("%.4f", s.R),
			"g": fmt.Sprintf("%.4f", s.G),
			"b": fmt.Sprintf("%.4f", s.B),
		},
	}
	if s.Entropy > d.threshold {
		return model.NewFinding(model.KindLSBAnomaly, fmt.Sprintf(
			"High entropy (%.4f/%.1f) detected in the LSB plane of the image. This strongly suggests LSB steganography.",
			s.Entropy, entropy.Max)).
			WithPayload(payload).
			WithHint(hintLSB)
	}
	return model.NewFinding(model.KindLSBAnalysis, fmt.Sprintf(
		"LSB plane entropy is %.4f/%.1f. No obvious signs of random data (steganography).",
		s.Entropy, entropy.Max)).
		WithPayload(payload)
}

func invalid(err error) model.Result {
	return model.Result{Findings: []model.Finding{
		model.NewFinding(model.KindInvalidImage, "Could not open file as an image. Error: "+err.Error()).
			WithPayload(model.ImageError{Reason: err.Error()}),
	}}
}

// Mode names the pixel layout of a decoded image.
func Mode(img image.Image) string {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA:
		return "RGBA"
	case *image.RGBA64, *image.NRGBA64:
		return "RGBA64"
	case *image.YCbCr:
		return "YCbCr"
	case *image.NYCbCrA:
		return "YCbCrA"
	case *image.Paletted:
		return "P"
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "L16"
	case *image.CMYK:
		return "CMYK"
	case *image.Alpha, *image.Alpha16:
		return "A"
	default:
		return fmt.Sprintf("%T", img)
	}
}
