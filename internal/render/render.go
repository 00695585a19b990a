// Package render writes reports in the formats supported by the CLI.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bytesleuth/sleuth/internal/bom"
	"github.com/bytesleuth/sleuth/internal/model"
)

type Renderer interface {
	Render(w io.Writer, reports []model.Report) error
}

// New returns the renderer of a model.Format* value. colored only affects
// the text format.
func New(format string, colored bool) (Renderer, error) {
	switch format {
	case model.FormatJSON:
		return JSON{}, nil
	case model.FormatText:
		return NewText(colored), nil
	case model.FormatCycloneDX:
		return CycloneDX{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// JSON writes a single report as an object and more of them as an array.
type JSON struct{}

func (JSON) Render(w io.Writer, reports []model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(reports) == 1 {
		return enc.Encode(reports[0])
	}
	if reports == nil {
		reports = []model.Report{}
	}
	return enc.Encode(reports)
}

type CycloneDX struct{}

func (CycloneDX) Render(w io.Writer, reports []model.Report) error {
	return bom.NewBuilder().AppendReports(reports...).AsJSON(w)
}
