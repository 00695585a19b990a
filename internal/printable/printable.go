// Package printable extracts printable ASCII runs and flag shaped tokens.
package printable

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/bytesleuth/sleuth/internal/model"
)

// flagRe matches flag{...}, ctf{...} and key{...} in any ASCII letter case.
// (?i) would also fold the Kelvin sign into k.
var flagRe = regexp.MustCompile(`(?:[Ff][Ll][Aa][Gg]|[Cc][Tt][Ff]|[Kk][Ee][Yy])\{.*?\}`)

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func isPrintable(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}

// Strings returns maximal runs of printable ASCII of at least minLen bytes.
// When limit > 0 at most limit runs are returned and truncated is set if more
// were present.
func Strings(b []byte, minLen, limit int) (ret []model.ExtractedString, truncated bool) {
	start := -1
	emit := func(end int) bool {
		if start < 0 || end-start < minLen {
			return true
		}
		if limit > 0 && len(ret) == limit {
			truncated = true
			return false
		}
		ret = append(ret, model.ExtractedString{Offset: int64(start), Value: string(b[start:end])})
		return true
	}
	for i, c := range b {
		if isPrintable(c) {
			if start < 0 {
				start = i
			}
			continue
		}
		if !emit(i) {
			return ret, truncated
		}
		start = -1
	}
	emit(len(b))
	return ret, truncated
}

// Flag is a flag shaped token and its offset.
type Flag struct {
	Offset int64
	Value  string
}

// Flags scans the raw bytes, so tokens are found even when they are not part
// of a printable run. A prefix glued to a preceding ASCII letter or digit
// (notaflag{x}) is not a flag, any other byte before it is fine (my_flag{x}).
func Flags(b []byte) []Flag {
	var ret []Flag
	for pos := 0; pos < len(b); {
		loc := flagRe.FindIndex(b[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if start > 0 && isAlnum(b[start-1]) {
			pos = start + 1
			continue
		}
		ret = append(ret, Flag{Offset: int64(start), Value: string(b[start:end])})
		pos = end
	}
	return ret
}

type Detector struct {
	minLen int
	limit  int
}

func New(minLen, limit int) Detector {
	return Detector{minLen: max(minLen, 1), limit: limit}
}

func (d Detector) Detect(ctx context.Context, blob model.Blob, _ model.TypeAnalysis) (model.Result, error) {
	strs, truncated := Strings(blob.Bytes(), d.minLen, d.limit)
	var res = model.Result{Strings: strs}
	if truncated {
		res.Warnings = append(res.Warnings, fmt.Sprintf("extracted strings truncated to the first %d", d.limit))
	}

	for _, flag := range Flags(blob.Bytes()) {
		res.Findings = append(res.Findings,
			model.NewFinding(model.KindPotentialFlag, "A string matching a common flag format was found.").
				WithOffset(flag.Offset).
				WithPayload(model.Flag(flag.Value)))
	}
	slog.DebugContext(ctx, "strings", "count", len(strs), "flags", len(res.Findings))
	return res, nil
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "strings"),
	}
}
