package bom

import (
	"fmt"
	"strconv"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/profile"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// Property names used on file components.
const (
	PropFilesize       = "sleuth:filesize"
	PropOverallEntropy = "sleuth:overall_entropy"
	PropExtensionType  = "sleuth:extension_type"
	PropTypeMismatch   = "sleuth:type_mismatch"
	PropFinding        = "sleuth:finding"
	PropError          = "sleuth:error"
	PropMetadataPrefix = "sleuth:metadata:"
)

// Component converts a report into a file component. idx makes the bom-ref
// unique when the same file is reported twice.
func Component(idx int, r model.Report) cdx.Component {
	c := cdx.Component{
		BOMRef: fmt.Sprintf("file-%d-%s", idx, r.Digest.SHA256),
		Type:   cdx.ComponentTypeFile,
		Name:   r.Filename,
		Hashes: &[]cdx.Hash{
			{Algorithm: cdx.HashAlgoMD5, Value: r.Digest.MD5},
			{Algorithm: cdx.HashAlgoSHA256, Value: r.Digest.SHA256},
		},
	}
	if r.TypeAnalysis.MagicType != profile.Unknown {
		c.MIMEType = r.TypeAnalysis.MagicType
	}

	SetComponentProp(&c, PropFilesize, strconv.FormatInt(r.Filesize, 10))
	SetComponentProp(&c, PropOverallEntropy, fmt.Sprintf("%.4f", r.OverallEntropy))
	SetComponentProp(&c, PropExtensionType, r.TypeAnalysis.ExtensionType)
	SetComponentProp(&c, PropTypeMismatch, strconv.FormatBool(r.TypeAnalysis.Mismatch))

	for _, f := range r.Findings {
		AddComponentProp(&c, PropFinding, fmt.Sprintf("%s %s: %s", f.Severity(), f.Kind, f.Message))
		if f.Offset != nil {
			AddEvidenceLocation(&c, fmt.Sprintf("%s@0x%x", f.Kind, *f.Offset))
		}
	}
	for _, e := range r.Errors {
		AddComponentProp(&c, PropError, e)
	}
	for _, k := range r.Metadata.Keys() {
		v, _ := r.Metadata.Get(k)
		SetComponentProp(&c, PropMetadataPrefix+k, v)
	}
	return c
}

// SetComponentProp sets (or upserts) a CycloneDX component property.
func SetComponentProp(c *cdx.Component, name, value string) {
	if value == "" {
		return
	}
	if c.Properties == nil {
		c.Properties = &[]cdx.Property{{Name: name, Value: value}}
		return
	}
	props := *c.Properties
	for i := range props {
		if props[i].Name == name {
			props[i].Value = value
			return
		}
	}
	AddComponentProp(c, name, value)
}

// AddComponentProp appends a property, names may repeat.
func AddComponentProp(c *cdx.Component, name, value string) {
	if c.Properties == nil {
		c.Properties = &[]cdx.Property{}
	}
	props := append(*c.Properties, cdx.Property{Name: name, Value: value})
	c.Properties = &props
}

// AddEvidenceLocation appends an evidence.occurrence location if non-empty.
func AddEvidenceLocation(c *cdx.Component, loc string) {
	if loc == "" {
		return
	}
	occ := cdx.EvidenceOccurrence{Location: loc}
	if c.Evidence == nil {
		c.Evidence = &cdx.Evidence{Occurrences: &[]cdx.EvidenceOccurrence{occ}}
		return
	}
	if c.Evidence.Occurrences == nil {
		c.Evidence.Occurrences = &[]cdx.EvidenceOccurrence{occ}
		return
	}
	occs := append(*c.Evidence.Occurrences, occ)
	c.Evidence.Occurrences = &occs
}
