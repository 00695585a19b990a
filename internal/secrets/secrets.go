// Package secrets looks for leaked credentials using the gitleaks default
// rule set.
package secrets

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// keep is the number of leading secret characters left in the report.
const keep = 4

// Detector is safe for concurrent use. The gitleaks rule set is compiled on
// the first Detect call.
type Detector struct {
	once sync.Once
	err  error
	pool sync.Pool
	mx   sync.Mutex
}

func New() *Detector {
	return &Detector{}
}

func (d *Detector) init() {
	first, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		d.err = fmt.Errorf("creating new gitleaks detector: %w", err)
		return
	}
	d.pool = sync.Pool{
		New: func() any {
			d.mx.Lock()
			defer d.mx.Unlock()
			detector, err := detect.NewDetectorDefaultConfig()
			if err != nil {
				panic(err)
			}
			return detector
		},
	}
	d.pool.Put(first)
}

func (d *Detector) Detect(ctx context.Context, blob model.Blob, _ model.TypeAnalysis) (model.Result, error) {
	select {
	case <-ctx.Done():
		return model.Result{}, ctx.Err()
	default:
	}
	d.once.Do(d.init)
	if d.err != nil {
		return model.Result{}, d.err
	}

	detector := d.pool.Get().(*detect.Detector)
	defer d.pool.Put(detector)

	b := blob.Bytes()
	var res model.Result
	for _, finding := range detector.DetectString(string(b)) {
		f := model.NewFinding(model.KindSecret, fmt.Sprintf(
			"A string matching the gitleaks rule '%s' was found on line %d.", finding.RuleID, finding.StartLine)).
			WithPayload(model.Secret{
				RuleID:      finding.RuleID,
				Description: finding.Description,
				Line:        finding.StartLine,
				Secret:      Redact(finding.Secret),
			}).
			WithHint("Rotate the credential if it is real.")
		if finding.Match != "" {
			if off := bytes.Index(b, []byte(finding.Match)); off >= 0 {
				f = f.WithOffset(int64(off))
			}
		}
		res.Findings = append(res.Findings, f)
	}
	slog.DebugContext(ctx, "secrets", "count", len(res.Findings))
	return res, nil
}

func (d *Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "gitleaks"),
	}
}

// Redact keeps the first few characters of s and masks the rest.
func Redact(s string) string {
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + strings.Repeat("*", len(s)-keep)
}
