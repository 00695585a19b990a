package render

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/fatih/color"
)

// Text is a human readable summary, findings are colored by severity.
type Text struct {
	header   *color.Color
	severity map[model.Severity]*color.Color
	dim      *color.Color
}

func NewText(colored bool) Text {
	t := Text{
		header: color.New(color.FgGreen, color.Bold),
		severity: map[model.Severity]*color.Color{
			model.SeverityInfo:     color.New(color.FgBlue),
			model.SeverityWarning:  color.New(color.FgYellow),
			model.SeverityHigh:     color.New(color.FgRed),
			model.SeverityCritical: color.New(color.FgRed, color.Bold),
		},
		dim: color.New(color.Faint),
	}
	for _, c := range append([]*color.Color{t.header, t.dim}, slices.Collect(maps.Values(t.severity))...) {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

func (t Text) Render(w io.Writer, reports []model.Report) error {
	ew := &errWriter{w: w}
	for i, r := range reports {
		if i > 0 {
			ew.printf("\n")
		}
		t.report(ew, r)
	}
	return ew.err
}

func (t Text) report(w *errWriter, r model.Report) {
	w.printf("%s\n", t.header.Sprintf("== %s (%d bytes) ==", clean(r.Filename), r.Filesize))
	typ := r.TypeAnalysis
	line := fmt.Sprintf("%s (extension %s: %s)", typ.MagicType, orNone(clean(typ.Extension)), typ.ExtensionType)
	if typ.Mismatch {
		line += " " + t.severity[model.SeverityCritical].Sprint("MISMATCH")
	}
	w.printf("type:     %s\n", line)
	w.printf("entropy:  %.4f\n", r.OverallEntropy)
	w.printf("md5:      %s\n", r.Digest.MD5)
	w.printf("sha256:   %s\n", r.Digest.SHA256)

	if len(r.Findings) > 0 {
		w.printf("findings:\n")
	}
	for _, f := range r.Findings {
		sev := t.severity[f.Severity()].Sprintf("%-8s", f.Severity())
		where := ""
		if f.Offset != nil {
			where = fmt.Sprintf(" @0x%x", *f.Offset)
		}
		w.printf("  %s %s%s: %s\n", sev, f.Kind, where, clean(f.Message))
		if f.Hint != "" {
			w.printf("           %s\n", t.dim.Sprint("hint: "+clean(f.Hint)))
		}
	}

	if keys := r.Metadata.Keys(); len(keys) > 0 {
		w.printf("metadata:\n")
		for _, k := range keys {
			v, _ := r.Metadata.Get(k)
			w.printf("  %s: %s\n", clean(k), oneLine(v))
		}
	}
	w.printf("strings:  %d extracted\n", len(r.Strings))
	for _, e := range r.Errors {
		w.printf("%s %s\n", t.severity[model.SeverityHigh].Sprint("error:"), clean(e))
	}
	for _, e := range r.Warnings {
		w.printf("%s %s\n", t.severity[model.SeverityWarning].Sprint("warning:"), clean(e))
	}
	w.printf("summary:  %d critical, %d high, %d warning, %d info\n",
		r.Count(model.SeverityCritical), r.Count(model.SeverityHigh),
		r.Count(model.SeverityWarning), r.Count(model.SeverityInfo))
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// oneLine keeps multi line metadata (XMP, comments) on a single row.
func oneLine(s string) string {
	const limit = 120
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit]) + "..."
	}
	return clean(s)
}

// clean escapes control and format characters, so names and values taken
// from the analyzed file cannot drive the terminal.
func clean(s string) string {
	if !strings.ContainsFunc(s, isUnsafe) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if isUnsafe(r) {
			q := strconv.QuoteRune(r)
			b.WriteString(q[1 : len(q)-1])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUnsafe(r rune) bool {
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}
