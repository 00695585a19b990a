package model

// Payload is the kind specific value attached to a Finding. The set of
// implementations is closed: each finding kind has its own payload type
// carrying only the fields meaningful to it.
type Payload interface {
	payload()
}

// Flag is the verbatim text of a flag-shaped token.
type Flag string

// TypeMismatch is attached to KindTypeMismatch.
type TypeMismatch struct {
	Extension string `json:"extension"`
	Actual    string `json:"actual"`
}

// EntropyValue is attached to KindHighEntropy.
type EntropyValue float64

// EntropyRegion is attached to KindHighEntropyRegion.
type EntropyRegion struct {
	Length  int     `json:"length"`
	Entropy float64 `json:"entropy"`
	Blocks  int     `json:"blocks"`
}

// TrailingData is attached to KindEOFData.
type TrailingData struct {
	Length     int    `json:"length"`
	PreviewHex string `json:"preview_hex"`
}

// Secret is attached to KindSecret. Secret is redacted, only its first
// characters are kept.
type Secret struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Secret      string `json:"secret"`
}

// ZipComment is the archive wide comment attached to KindZipComment. DataHex
// holds the comment bytes verbatim, Comment is their printable rendering.
type ZipComment struct {
	Comment string `json:"comment"`
	Size    int    `json:"size"`
	DataHex string `json:"data_hex"`
}

// ZipFileComment is attached to KindZipFileComment.
type ZipFileComment struct {
	Filename string `json:"filename"`
	Comment  string `json:"comment"`
	Size     int    `json:"size"`
	DataHex  string `json:"data_hex"`
}

// ZipExtraField is attached to KindZipExtraField.
type ZipExtraField struct {
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	DataHex  string `json:"data_hex"`
}

// CRCMismatch is attached to KindCRCError. Computed is empty and Error set when
// the payload could not be decompressed.
type CRCMismatch struct {
	Filename    string `json:"filename"`
	ExpectedCRC string `json:"expected_crc"`
	ComputedCRC string `json:"computed_crc,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PseudoEncryption is attached to KindPseudoEncryption. PlaintextCRC reports
// whether the stored bytes already match the central directory CRC.
type PseudoEncryption struct {
	Filename     string `json:"filename"`
	PlaintextCRC bool   `json:"plaintext_crc_match"`
}

// EncryptedEntry is attached to KindEncryptedFile.
type EncryptedEntry struct {
	Filename string `json:"filename"`
}

// HeaderMismatch is attached to KindZipHeaderMisfit.
type HeaderMismatch struct {
	Filename     string `json:"filename"`
	LocalFlags   uint16 `json:"local_flags"`
	CentralFlags uint16 `json:"central_flags"`
}

// LSBStats is attached to KindLSBAnomaly and KindLSBAnalysis.
type LSBStats struct {
	Entropy  string            `json:"entropy"`
	Channels map[string]string `json:"channels,omitempty"`
}

// ImageError is attached to KindInvalidImage and KindLSBSkipped.
type ImageError struct {
	Reason string `json:"reason"`
}

func (Flag) payload()             {}
func (TypeMismatch) payload()     {}
func (EntropyValue) payload()     {}
func (EntropyRegion) payload()    {}
func (TrailingData) payload()     {}
func (Secret) payload()           {}
func (ZipComment) payload()       {}
func (ZipFileComment) payload()   {}
func (ZipExtraField) payload()    {}
func (CRCMismatch) payload()      {}
func (PseudoEncryption) payload() {}
func (EncryptedEntry) payload()   {}
func (HeaderMismatch) payload()   {}
func (LSBStats) payload()         {}
func (ImageError) payload()       {}
func (Metadata) payload()         {}
