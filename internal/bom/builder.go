// Package bom exports analysis reports as a CycloneDX document. Every blob
// becomes a file component carrying its digests, and the findings are
// attached as component properties.
package bom

import (
	"io"
	"runtime/debug"
	"time"

	"github.com/bytesleuth/sleuth/internal/model"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
)

var version string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		version = "unknown"
	} else {
		version = info.Main.Version
	}
}

// Builder is a builder pattern for a CycloneDX BOM structure
type Builder struct {
	components []cdx.Component
	properties []cdx.Property
	timestamp  time.Time
	serial     uuid.UUID
}

func NewBuilder() *Builder {
	return &Builder{
		// those MUST be initialized as cyclone-dx JSON schema do not allow items to be null
		components: []cdx.Component{},
		properties: []cdx.Property{},
		timestamp:  time.Now().UTC(),
		serial:     uuid.New(),
	}
}

func (b *Builder) WithTimestamp(t time.Time) *Builder {
	b.timestamp = t.UTC()
	return b
}

func (b *Builder) WithSerial(serial uuid.UUID) *Builder {
	b.serial = serial
	return b
}

// AppendReports adds one file component per report.
func (b *Builder) AppendReports(reports ...model.Report) *Builder {
	for _, r := range reports {
		b.components = append(b.components, Component(len(b.components), r))
	}
	return b
}

func (b *Builder) AppendProperties(properties ...cdx.Property) *Builder {
	b.properties = append(b.properties, properties...)
	return b
}

// BOM returns a cdx.BOM based on a data inside the Builder
func (b *Builder) BOM() cdx.BOM {
	return cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    cdx.BOMFormat,
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + b.serial.String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: b.timestamp.Format(time.RFC3339),
			Lifecycles: &[]cdx.Lifecycle{
				{Phase: cdx.LifecyclePhaseOperations},
			},
			// This can't be not nil otherwise this error will happen
			// json: error calling MarshalJSON for type *cyclonedx.ToolsChoice: unexpected end of JSON input
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "sleuth",
				Version: version,
			},
		},
		Components: &b.components,
		Properties: &b.properties,
	}
}

// AsJSON encode the BOM into JSON format
func (b *Builder) AsJSON(w io.Writer) error {
	bom := b.BOM()
	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}
