package model

// Digest holds hex encoded digests of the whole blob.
type Digest struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Preview is a hexdump of the first and last bytes of a blob. Tail is empty
// when the whole blob fits into Head.
type Preview struct {
	Head []string `json:"head"`
	Tail []string `json:"tail"`
}

// Report is the aggregated analysis of one blob. It is built once and not
// modified after it was returned by the scanner.
type Report struct {
	Filename       string            `json:"filename"`
	Filesize       int64             `json:"filesize"`
	Digest         Digest            `json:"file_digest"`
	Preview        Preview           `json:"hex_ascii_preview"`
	OverallEntropy float64           `json:"overall_entropy"`
	TypeAnalysis   TypeAnalysis      `json:"file_type_analysis"`
	Findings       []Finding         `json:"findings"`
	Strings        []ExtractedString `json:"extracted_strings"`
	Metadata       Metadata          `json:"metadata"`
	Errors         []string          `json:"errors"`
	Warnings       []string          `json:"warnings"`
}

// Count returns the number of findings with the given severity.
func (r Report) Count(s Severity) int {
	var n int
	for _, f := range r.Findings {
		if f.Severity() == s {
			n++
		}
	}
	return n
}

// Worst returns the highest severity in the report and false if there are no
// findings.
func (r Report) Worst() (Severity, bool) {
	if len(r.Findings) == 0 {
		return SeverityInfo, false
	}
	worst := SeverityInfo
	for _, f := range r.Findings {
		if s := f.Severity(); s > worst {
			worst = s
		}
	}
	return worst, true
}
