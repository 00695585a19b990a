// Package zipinspect checks the structural integrity of zip containers and
// reports the places where data is commonly hidden in them: comments, extra
// fields, broken CRCs and fake encryption flags.
package zipinspect

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bytesleuth/sleuth/internal/model"
)

const (
	hintPseudo = "Try unzipping with a tool that ignores the encryption flag, like 7-Zip, or by manually patching the flag bit."
	hintHeader = "Extractors read different headers. Patch the flag bit so the local and central headers agree."
)

type Detector struct{}

func New() Detector {
	return Detector{}
}

// Detect reports a structurally broken archive as a single critical finding
// and skips all other checks in that case.
func (d Detector) Detect(ctx context.Context, blob model.Blob, _ model.TypeAnalysis) (model.Result, error) {
	archive, err := Open(ctx, blob.Bytes())
	switch {
	case errors.Is(err, ErrInvalid):
		slog.DebugContext(ctx, "invalid zip", "error", err)
		return model.Result{Findings: []model.Finding{
			model.NewFinding(model.KindInvalidZip, "The file is not a valid ZIP archive or is corrupted: "+strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": ")),
		}}, nil
	case err != nil:
		return model.Result{}, err
	}

	var res model.Result
	if archive.Comment != "" {
		f := model.NewFinding(model.KindZipComment, fmt.Sprintf(
			"The ZIP archive contains a %d byte global comment.", len(archive.Comment))).
			WithPayload(model.ZipComment{
				Comment: text(archive.Comment),
				Size:    len(archive.Comment),
				DataHex: hex.EncodeToString([]byte(archive.Comment)),
			})
		if archive.CommentOffset >= 0 {
			f = f.WithOffset(archive.CommentOffset)
		}
		res.Findings = append(res.Findings, f)
	}

	for _, e := range archive.Entries {
		res.Findings = append(res.Findings, entryFindings(e)...)
		if e.Unsupported {
			res.Warnings = append(res.Warnings, fmt.Sprintf("zip entry '%s' uses unsupported compression method %d, CRC not verified", e.Name, e.Method))
		}
	}
	slog.DebugContext(ctx, "zip inspected", "entries", len(archive.Entries), "findings", len(res.Findings))
	return res, nil
}

func entryFindings(e Entry) []model.Finding {
	var ret []model.Finding
	withOffset := func(f model.Finding, off int64) model.Finding {
		if off >= 0 {
			return f.WithOffset(off)
		}
		return f
	}

	if e.Comment != "" {
		ret = append(ret, withOffset(model.NewFinding(model.KindZipFileComment,
			fmt.Sprintf("The file '%s' within the ZIP has a %d byte comment.", e.Name, len(e.Comment))).
			WithPayload(model.ZipFileComment{
				Filename: e.Name,
				Comment:  text(e.Comment),
				Size:     len(e.Comment),
				DataHex:  hex.EncodeToString([]byte(e.Comment)),
			}), e.CommentOffset))
	}

	if len(e.Extra) > 0 {
		ret = append(ret, withOffset(model.NewFinding(model.KindZipExtraField,
			fmt.Sprintf("The file '%s' contains an 'extra data' field, which could be used for steganography.", e.Name)).
			WithPayload(model.ZipExtraField{Filename: e.Name, Size: len(e.Extra), DataHex: hex.EncodeToString(e.Extra)}), e.HeaderOffset))
	}

	if !e.Encrypted() {
		switch {
		case e.VerifyErr != nil:
			ret = append(ret, withOffset(model.NewFinding(model.KindCRCError, fmt.Sprintf(
				"Could not read back file '%s' to verify its CRC: %v. The data may be tampered or require a specific tool to extract.", e.Name, e.VerifyErr)).
				WithPayload(model.CRCMismatch{Filename: e.Name, ExpectedCRC: crcHex(e.StoredCRC), Error: e.VerifyErr.Error()}), e.HeaderOffset))
		case e.Verified && e.ComputedCRC != e.StoredCRC:
			ret = append(ret, withOffset(model.NewFinding(model.KindCRCError, fmt.Sprintf(
				"CRC check failed for file '%s' inside the archive: stored %s, computed %s. The data may be tampered or require a specific tool to extract.",
				e.Name, crcHex(e.StoredCRC), crcHex(e.ComputedCRC))).
				WithPayload(model.CRCMismatch{Filename: e.Name, ExpectedCRC: crcHex(e.StoredCRC), ComputedCRC: crcHex(e.ComputedCRC)}), e.HeaderOffset))
		}
	}

	switch {
	case IsPseudoEncrypted(e):
		ret = append(ret, withOffset(model.NewFinding(model.KindPseudoEncryption, fmt.Sprintf(
			"The file '%s' is marked as encrypted but uses no compression (STORED). This is a strong indicator of pseudo-encryption.", e.Name)).
			WithPayload(model.PseudoEncryption{Filename: e.Name, PlaintextCRC: e.Verified && e.ComputedCRC == e.StoredCRC}).
			WithHint(hintPseudo), e.HeaderOffset))
	case e.Encrypted():
		ret = append(ret, withOffset(model.NewFinding(model.KindEncryptedFile, fmt.Sprintf(
			"The file '%s' is encrypted. Check comments, filenames, or other clues for a password.", e.Name)).
			WithPayload(model.EncryptedEntry{Filename: e.Name}), e.HeaderOffset))
	}

	if e.HasLocal && (e.LocalFlags&flagEncrypted) != (e.Flags&flagEncrypted) {
		ret = append(ret, withOffset(model.NewFinding(model.KindZipHeaderMisfit, fmt.Sprintf(
			"The encryption flag of '%s' differs between the local header (0x%04x) and the central directory (0x%04x).", e.Name, e.LocalFlags, e.Flags)).
			WithPayload(model.HeaderMismatch{Filename: e.Name, LocalFlags: e.LocalFlags, CentralFlags: e.Flags}).
			WithHint(hintHeader), e.HeaderOffset))
	}
	return ret
}

// IsPseudoEncrypted is the single rule used to call an entry pseudo
// encrypted: the encryption flag is set and the method is STORE.
func IsPseudoEncrypted(e Entry) bool {
	return e.Encrypted() && e.Method == zip.Store
}

func crcHex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

// text replaces each byte which is not valid UTF-8 with U+FFFD. The bytes
// themselves are kept in the hex dump of the payload.
func text(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && n == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.WriteString(s[i : i+n])
		}
		i += n
	}
	return b.String()
}

func (d Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "zip"),
	}
}
