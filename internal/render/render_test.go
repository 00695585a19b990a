package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/render"

	"github.com/stretchr/testify/require"
)

func report(name string) model.Report {
	md := model.NewMetadata()
	md.Set("comment", "multi\nline")
	return model.Report{
		Filename: name,
		Filesize: 10,
		TypeAnalysis: model.TypeAnalysis{
			MagicType:     "image/png",
			Extension:     ".jpg",
			ExtensionType: "image/jpeg",
			Mismatch:      true,
		},
		Findings: []model.Finding{
			model.NewFinding(model.KindTypeMismatch, "extension lies").WithHint("trust the magic bytes"),
			model.NewFinding(model.KindEOFData, "appended").WithOffset(255),
		},
		Metadata: md,
		Errors:   []string{"zip: boom"},
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    []model.Report
		then     string
	}{
		{scenario: "single report is an object", given: []model.Report{report("a")}, then: "{"},
		{scenario: "many reports are an array", given: []model.Report{report("a"), report("b")}, then: "["},
		{scenario: "no reports", given: nil, then: "[]"},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			r, err := render.New(model.FormatJSON, false)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, r.Render(&buf, tc.given))
			require.True(t, strings.HasPrefix(buf.String(), tc.then), buf.String())
			require.True(t, json.Valid(buf.Bytes()))
		})
	}
}

func TestText(t *testing.T) {
	t.Parallel()
	r, err := render.New(model.FormatText, false)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, []model.Report{report("photo.jpg")}))
	out := buf.String()

	require.Contains(t, out, "== photo.jpg (10 bytes) ==")
	require.Contains(t, out, "image/png (extension .jpg: image/jpeg) MISMATCH")
	require.Contains(t, out, "CRITICAL MAGIC_BYTES_MISMATCH: extension lies")
	require.Contains(t, out, "hint: trust the magic bytes")
	require.Contains(t, out, "HIGH     EOF_DATA @0xff: appended")
	require.Contains(t, out, "comment: multi line")
	require.Contains(t, out, "error: zip: boom")
	require.Contains(t, out, "summary:  1 critical, 1 high, 0 warning, 0 info")
	require.NotContains(t, out, "\x1b[")
}

func TestTextEscapesControl(t *testing.T) {
	t.Parallel()
	md := model.NewMetadata()
	md.Set("EXIF:Artist", "\x1b]0;pwned\x07\x1b[31mred")
	given := model.Report{
		Filename: "evil\x1b[2J.zip",
		Findings: []model.Finding{
			model.NewFinding(model.KindZipFileComment, "The file 'a\x1b[1A\u202etxt.exe' has a comment.").
				WithHint("look at\rthis"),
		},
		Metadata: md,
		Warnings: []string{"bell\x07"},
	}

	r, err := render.New(model.FormatText, false)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, []model.Report{given}))
	out := buf.String()

	require.NotContains(t, out, "\x1b")
	require.NotContains(t, out, "\x07")
	require.NotContains(t, out, "\r")
	require.NotContains(t, out, "\u202e")
	require.Contains(t, out, `== evil\x1b[2J.zip (0 bytes) ==`)
	require.Contains(t, out, `The file 'a\x1b[1A\u202etxt.exe' has a comment.`)
	require.Contains(t, out, `hint: look at\rthis`)
	require.Contains(t, out, `EXIF:Artist: \x1b]0;pwned\a\x1b[31mred`)
	require.Contains(t, out, `warning: bell\a`)
}

func TestCycloneDX(t *testing.T) {
	t.Parallel()
	r, err := render.New(model.FormatCycloneDX, false)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, []model.Report{report("photo.jpg")}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, "CycloneDX", doc["bomFormat"])
	require.Len(t, doc["components"], 1)
}

func TestUnknownFormat(t *testing.T) {
	t.Parallel()
	_, err := render.New("xml", false)
	require.Error(t, err)
}
