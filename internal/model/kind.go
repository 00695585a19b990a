package model

import (
	"encoding/json"
	"fmt"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityInfo:     "INFO",
	SeverityWarning:  "WARNING",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Kind is the tag of a Finding. Its severity is fixed, see Kind.Severity.
type Kind string

const (
	KindPotentialFlag     Kind = "POTENTIAL_FLAG"
	KindTypeMismatch      Kind = "MAGIC_BYTES_MISMATCH"
	KindHighEntropy       Kind = "HIGH_ENTROPY"
	KindHighEntropyRegion Kind = "HIGH_ENTROPY_REGION"
	KindEOFData           Kind = "EOF_DATA"
	KindSecret            Kind = "POTENTIAL_SECRET"

	KindInvalidZip       Kind = "INVALID_ZIP_FILE"
	KindZipComment       Kind = "ZIP_COMMENT"
	KindZipFileComment   Kind = "ZIP_FILE_COMMENT"
	KindZipExtraField    Kind = "ZIP_EXTRA_FIELD"
	KindCRCError         Kind = "CRC_ERROR"
	KindPseudoEncryption Kind = "PSEUDO_ENCRYPTION"
	KindEncryptedFile    Kind = "ENCRYPTED_FILE"
	KindZipHeaderMisfit  Kind = "ZIP_HEADER_MISMATCH"

	KindInvalidImage  Kind = "INVALID_IMAGE_FILE"
	KindImageMetadata Kind = "IMAGE_METADATA"
	KindLSBAnomaly    Kind = "LSB_ANOMALY"
	KindLSBAnalysis   Kind = "LSB_ANALYSIS"
	KindLSBSkipped    Kind = "LSB_ANALYSIS_SKIPPED"
)

var severities = map[Kind]Severity{
	KindPotentialFlag:     SeverityCritical,
	KindTypeMismatch:      SeverityCritical,
	KindHighEntropy:       SeverityInfo,
	KindHighEntropyRegion: SeverityWarning,
	KindEOFData:           SeverityHigh,
	KindSecret:            SeverityHigh,

	KindInvalidZip:       SeverityCritical,
	KindZipComment:       SeverityInfo,
	KindZipFileComment:   SeverityInfo,
	KindZipExtraField:    SeverityWarning,
	KindCRCError:         SeverityCritical,
	KindPseudoEncryption: SeverityHigh,
	KindEncryptedFile:    SeverityInfo,
	KindZipHeaderMisfit:  SeverityWarning,

	KindInvalidImage:  SeverityWarning,
	KindImageMetadata: SeverityInfo,
	KindLSBAnomaly:    SeverityHigh,
	KindLSBAnalysis:   SeverityInfo,
	KindLSBSkipped:    SeverityInfo,
}

// Severity looks the kind up in the static severity table. Unknown kinds are
// reported as warnings.
func (k Kind) Severity() Severity {
	if s, ok := severities[k]; ok {
		return s
	}
	return SeverityWarning
}
