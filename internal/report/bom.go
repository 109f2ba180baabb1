package report

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/hardenlabs/scanweave/internal/model"
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

// buildBOM maps the run report into a CycloneDX document: one platform
// component per scanned target, one vulnerability per finding. Entries
// without findings contribute only their component.
func buildBOM(rep model.RunReport) cdx.BOM {
	components := make([]cdx.Component, 0, len(rep.Entries))
	vulnerabilities := []cdx.Vulnerability{}

	for _, e := range rep.Entries {
		ref := "target/" + e.Target.String()
		components = append(components, cdx.Component{
			BOMRef: ref,
			Type:   cdx.ComponentTypePlatform,
			Name:   e.Target.String(),
		})

		for i, f := range e.Findings {
			vulnerabilities = append(vulnerabilities, cdx.Vulnerability{
				BOMRef:      fmt.Sprintf("%s/finding/%d", ref, i),
				ID:          f.TemplateID,
				Description: f.Detail,
				Ratings: &[]cdx.VulnerabilityRating{
					{Severity: cdxSeverity(f.Severity)},
				},
				Affects: &[]cdx.Affects{
					{Ref: ref},
				},
			})
		}
	}

	return cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "scanweave",
				Version: version,
			},
			Properties: &[]cdx.Property{
				{Name: "scanweave:run", Value: rep.ID.String()},
			},
		},
		Components:      &components,
		Vulnerabilities: &vulnerabilities,
	}
}

func writeBOM(path string, rep model.RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	bom := buildBOM(rep)
	return cdx.NewBOMEncoder(f, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}

func cdxSeverity(s model.Severity) cdx.Severity {
	switch s {
	case model.SeverityCritical:
		return cdx.SeverityCritical
	case model.SeverityHigh:
		return cdx.SeverityHigh
	case model.SeverityMedium:
		return cdx.SeverityMedium
	case model.SeverityLow:
		return cdx.SeverityLow
	case model.SeverityInfo:
		return cdx.SeverityInfo
	default:
		return cdx.SeverityUnknown
	}
}
