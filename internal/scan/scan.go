// Package scan runs the detectors over a blob and assembles their results
// into a single report.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/bytesleuth/sleuth/internal/entropy"
	"github.com/bytesleuth/sleuth/internal/imageinspect"
	"github.com/bytesleuth/sleuth/internal/log"
	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/parallel"
	"github.com/bytesleuth/sleuth/internal/printable"
	"github.com/bytesleuth/sleuth/internal/profile"
	"github.com/bytesleuth/sleuth/internal/secrets"
	"github.com/bytesleuth/sleuth/internal/signature"
	"github.com/bytesleuth/sleuth/internal/trailing"
	"github.com/bytesleuth/sleuth/internal/walk"
	"github.com/bytesleuth/sleuth/internal/zipinspect"

	"golang.org/x/sync/errgroup"
)

type Detector interface {
	Detect(ctx context.Context, blob model.Blob, typ model.TypeAnalysis) (model.Result, error)
}

// Stage is a named detector. Applies gates the stage on the type analysis,
// nil means the stage always runs.
type Stage struct {
	Name     string
	Detector Detector
	Applies  func(model.TypeAnalysis) bool
}

type Scanner struct {
	cfg       model.Analysis
	signature signature.Detector
	stages    []Stage
}

type Option func(*Scanner)

// WithStage appends a stage after the built in ones.
func WithStage(st Stage) Option {
	return func(s *Scanner) {
		s.stages = append(s.stages, st)
	}
}

func New(cfg model.Config, p *profile.Profile, opts ...Option) *Scanner {
	a := cfg.Analysis
	sig := signature.New(p)
	s := &Scanner{
		cfg:       a,
		signature: sig,
		stages: []Stage{
			{Name: "signature", Detector: sig},
			{Name: "entropy", Detector: entropy.New(a.EntropyThreshold)},
			{Name: "trailing", Detector: trailing.New(p)},
			{Name: "strings", Detector: printable.New(a.MinStringLen, a.MaxStrings)},
			{Name: "secrets", Detector: secrets.New()},
			{Name: "zip", Detector: zipinspect.New(), Applies: func(t model.TypeAnalysis) bool {
				return p.IsZipLike(t.MagicType) || profile.IsOOXML(t.ExtensionType)
			}},
			{Name: "image", Detector: imageinspect.New(a.LSBThreshold), Applies: func(t model.TypeAnalysis) bool {
				return profile.IsImage(t.MagicType)
			}},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outcome struct {
	res model.Result
	err error
	ran bool
}

// Analyze runs all applicable stages concurrently and merges their results
// in stage order. A failing or panicking stage is recorded in Report.Errors
// and does not affect the others.
func (s *Scanner) Analyze(ctx context.Context, blob model.Blob) (model.Report, error) {
	if blob.Len() == 0 {
		return model.Report{}, model.ErrEmpty
	}
	if int64(blob.Len()) > s.cfg.MaxSize {
		return model.Report{}, fmt.Errorf("blob has %d bytes, limit is %d: %w", blob.Len(), s.cfg.MaxSize, model.ErrTooBig)
	}

	typ := s.signature.Classify(blob)
	outcomes := make([]outcome, len(s.stages))
	var g errgroup.Group
	for i, st := range s.stages {
		if st.Applies != nil && !st.Applies(typ) {
			continue
		}
		g.Go(func() error {
			outcomes[i] = run(ctx, st, blob, typ)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return model.Report{}, err
	}
	return s.assemble(blob, typ, outcomes), nil
}

func run(ctx context.Context, st Stage, blob model.Blob, typ model.TypeAnalysis) (o outcome) {
	ctx = log.ContextAttrs(ctx, slog.String("stage", st.Name))
	if ld, ok := st.Detector.(interface{ LogAttrs() []slog.Attr }); ok {
		ctx = log.ContextAttrs(ctx, ld.LogAttrs()...)
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "detector panicked", "panic", r)
			o = outcome{err: fmt.Errorf("panic: %v", r), ran: true}
		}
	}()
	res, err := st.Detector.Detect(ctx, blob, typ)
	if err != nil {
		slog.WarnContext(ctx, "detector failed", "error", err)
	}
	return outcome{res: res, err: err, ran: true}
}

func (s *Scanner) assemble(blob model.Blob, typ model.TypeAnalysis, outcomes []outcome) model.Report {
	r := model.Report{
		Filename:       blob.Name(),
		Filesize:       int64(blob.Len()),
		Digest:         digest(blob.Bytes()),
		Preview:        preview(blob.Bytes(), s.cfg.PreviewBytes),
		OverallEntropy: round4(entropy.Shannon(blob.Bytes())),
		TypeAnalysis:   typ,
		Findings:       []model.Finding{},
		Strings:        []model.ExtractedString{},
		Metadata:       model.NewMetadata(),
		Errors:         []string{},
		Warnings:       []string{},
	}
	for i, o := range outcomes {
		if !o.ran {
			continue
		}
		if o.err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", s.stages[i].Name, o.err))
			continue
		}
		r.Findings = append(r.Findings, o.res.Findings...)
		r.Strings = append(r.Strings, o.res.Strings...)
		r.Warnings = append(r.Warnings, o.res.Warnings...)
		if o.res.Metadata.Len() > 0 {
			r.Metadata = r.Metadata.Merge(o.res.Metadata)
		}
	}
	return r
}

// Analysis is a report of a single walked file, or an error if the file
// could not be read.
type Analysis struct {
	Path   string
	Report model.Report
}

// Do analyzes every entry of seq with at most cfg.Parallel files in flight.
// Oversized files are reported as ErrTooBig without being read.
func (s *Scanner) Do(ctx context.Context, seq iter.Seq2[walk.Entry, error]) iter.Seq2[Analysis, error] {
	return parallel.NewMap(ctx, s.cfg.Parallel, s.analyzeEntry).Iter(seq)
}

func (s *Scanner) analyzeEntry(ctx context.Context, entry walk.Entry) (Analysis, error) {
	ret := Analysis{Path: entry.Path()}
	ctx = log.ContextAttrs(ctx, slog.String("path", entry.Path()))
	slog.DebugContext(ctx, "scanning")
	if ctx.Err() != nil {
		return ret, ctx.Err()
	}
	info, err := entry.Stat()
	if err != nil {
		return ret, fmt.Errorf("%s: scan Stat: %w", entry.Path(), err)
	}
	if info.Size() > s.cfg.MaxSize {
		slog.DebugContext(ctx, "scanning skipped, too big file", "size", info.Size())
		return ret, fmt.Errorf("%s: entry too big (%d bytes): %w", entry.Path(), info.Size(), model.ErrTooBig)
	}
	if info.Size() == 0 {
		return ret, fmt.Errorf("%s: %w", entry.Path(), model.ErrEmpty)
	}

	b, err := readAll(entry, s.cfg.MaxSize)
	if err != nil {
		return ret, fmt.Errorf("%s: %w", entry.Path(), err)
	}
	ret.Report, err = s.Analyze(ctx, model.NewBlob(b, entry.Path()))
	if err != nil {
		return ret, fmt.Errorf("%s: %w", entry.Path(), err)
	}
	return ret, nil
}

func readAll(entry walk.Entry, limit int64) ([]byte, error) {
	f, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("scan Open: %w", err)
	}
	defer func() {
		_ = f.Close() // ignoring close error for read only file
	}()
	b, err := readLimited(f, limit)
	if err != nil {
		return nil, fmt.Errorf("scan Read: %w", err)
	}
	return b, nil
}

// IsSkip reports input errors which skip a single file without failing the
// whole batch.
func IsSkip(err error) bool {
	return errors.Is(err, model.ErrEmpty) || errors.Is(err, model.ErrTooBig)
}
