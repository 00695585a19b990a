// Package entropy computes Shannon entropy of byte streams and reports blobs
// or regions which look compressed, encrypted or random.
package entropy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/bytesleuth/sleuth/internal/model"
)

const (
	Max       = 8.0
	BlockSize = 4096
)

// Shannon returns H = -Σ p·log2(p) over the byte histogram of b, in bits per
// byte. The result is within [0, 8]; an empty input has entropy 0.
func Shannon(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var hist [256]int
	for _, c := range b {
		hist[c]++
	}
	return fromHistogram(&hist, len(b))
}

func fromHistogram(hist *[256]int, n int) float64 {
	total := float64(n)
	var h float64
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		h -= p * math.Log2(p)
	}
	return min(max(h, 0), Max)
}

// Detector reports high entropy of the whole blob and of embedded regions.
type Detector struct {
	threshold float64
}

func New(threshold float64) Detector {
	return Detector{threshold: threshold}
}

func (d Detector) Detect(ctx context.Context, blob model.Blob, _ model.TypeAnalysis) (model.Result, error) {
	b := blob.Bytes()
	overall := Shannon(b)
	slog.DebugContext(ctx, "entropy", "overall", overall)

	var findings []model.Finding
	if overall > d.threshold {
		findings = append(findings, model.NewFinding(model.KindHighEntropy, fmt.Sprintf(
			"File has a high Shannon entropy of %.4f/8.0. This could indicate encryption, compression, or packed data.", overall)).
			WithPayload(model.EntropyValue(overall)))
		return model.Result{Findings: findings}, nil
	}

	if off, region, ok := d.region(ctx, b); ok {
		findings = append(findings, model.NewFinding(model.KindHighEntropyRegion, fmt.Sprintf(
			"A %d byte region starting at offset %d has entropy %.4f/8.0 while the file overall has %.4f. It may hold embedded compressed or encrypted data.",
			region.Length, off, region.Entropy, overall)).
			WithOffset(off).
			WithPayload(region))
	}
	return model.Result{Findings: findings}, nil
}

// region finds the first run of consecutive high entropy blocks.
func (d Detector) region(ctx context.Context, b []byte) (int64, model.EntropyRegion, bool) {
	if len(b) < 2*BlockSize {
		return 0, model.EntropyRegion{}, false
	}
	start := -1
	var blocks int
	for off := 0; off+BlockSize <= len(b); off += BlockSize {
		if ctx.Err() != nil {
			break
		}
		if Shannon(b[off:off+BlockSize]) > d.threshold {
			if start < 0 {
				start = off
			}
			blocks++
			continue
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return 0, model.EntropyRegion{}, false
	}
	length := blocks * BlockSize
	return int64(start), model.EntropyRegion{
		Length:  length,
		Entropy: Shannon(b[start : start+length]),
		Blocks:  blocks,
	}, true
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "entropy"),
	}
}
