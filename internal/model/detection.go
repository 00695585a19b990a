package model

// TypeAnalysis is the outcome of signature detection.
type TypeAnalysis struct {
	MagicType     string `json:"magic_bytes_type"`
	Extension     string `json:"extension"`
	ExtensionType string `json:"extension_type"`
	Mismatch      bool   `json:"type_mismatch"`
}

// ExtractedString is a printable run found in a blob.
type ExtractedString struct {
	Offset int64  `json:"offset"`
	Value  string `json:"string"`
}

// Result is what a single detector returns for a blob.
type Result struct {
	Findings []Finding
	Strings  []ExtractedString
	Metadata Metadata
	Warnings []string
}
