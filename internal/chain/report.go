package chain

import (
	"encoding/xml"

	"github.com/ventoy/vbdgo/internal/units"
	"github.com/ventoy/vbdgo/pkg/dfxml"
)

const reportPackageName = "vbdgo"

// Report is the root element of a chain inspection document: the set of
// image/override/virt chunks a chain resolves to, rendered in the
// teacher's own DFXML byte-run schema (pkg/dfxml) rather than a parallel
// one, so existing DFXML tooling can already chew on the img/override
// sections.
type Report struct {
	XMLName   xml.Name       `xml:"vbdreport"`
	XmlOutput string         `xml:"xmloutputversion,attr,omitempty"`
	Creator   dfxml.Creator  `xml:"creator"`
	Source    ReportSource   `xml:"source"`
	Images    dfxml.ByteRuns `xml:"img_chunks"`
	Overrides dfxml.ByteRuns `xml:"override_chunks"`
	Virts     []VirtRun      `xml:"virt_chunks>byte_run"`
}

// ReportSource names the chain blob the report was generated from.
type ReportSource struct {
	RealImgSize uint64 `xml:"real_img_size"`
	VirtImgSize uint64 `xml:"virt_img_size"`
}

// VirtRun is one virt-chunk's mem and/or remap windows. Unlike the image
// and override chunks, a virt chunk carries two independent, optional
// windows (mem and remap) rather than a single offset/length extent, so
// it doesn't fit dfxml.ByteRun's shape and keeps its own element.
type VirtRun struct {
	HasMem           bool   `xml:"has_mem,attr"`
	MemSectorStart   uint64 `xml:"mem_sector_start,attr,omitempty"`
	MemSectorEnd     uint64 `xml:"mem_sector_end,attr,omitempty"`
	HasRemap         bool   `xml:"has_remap,attr"`
	RemapSectorStart uint64 `xml:"remap_sector_start,attr,omitempty"`
	RemapSectorEnd   uint64 `xml:"remap_sector_end,attr,omitempty"`
	OrgSectorStart   uint64 `xml:"org_sector_start,attr,omitempty"`
}

// BuildReport renders c's decoded chunk lists into a Report suitable for
// xml.MarshalIndent.
func BuildReport(c *Chain) Report {
	r := Report{
		XmlOutput: dfxml.XmlOutputVersion,
		Creator: dfxml.Creator{
			Package:              reportPackageName,
			ExecutionEnvironment: dfxml.GetExecEnv(),
		},
		Source: ReportSource{
			RealImgSize: c.RealImgSize(),
			VirtImgSize: c.VirtImgSize(),
		},
	}

	nativeSectorSize := c.DiskSectorSize()
	for _, ic := range c.ImgChunks() {
		r.Images.Runs = append(r.Images.Runs, dfxml.ByteRun{
			Offset:    uint64(ic.ImgStartSector.ByteOffset()),
			ImgOffset: uint64(ic.DiskStartSector.ByteOffset(nativeSectorSize)),
			Length:    ic.SectorCount() * units.ImageSectorSize,
		})
	}
	for _, oc := range c.OverrideChunks() {
		r.Overrides.Runs = append(r.Overrides.Runs, dfxml.ByteRun{
			Offset:    uint64(oc.ImgOffset),
			ImgOffset: uint64(oc.ImgOffset),
			Length:    uint64(len(oc.Data)),
		})
	}
	for _, vc := range c.VirtChunks() {
		r.Virts = append(r.Virts, VirtRun{
			HasMem:           vc.HasMem,
			MemSectorStart:   uint64(vc.MemSectorStart),
			MemSectorEnd:     uint64(vc.MemSectorEnd),
			HasRemap:         vc.HasRemap,
			RemapSectorStart: uint64(vc.RemapSectorStart),
			RemapSectorEnd:   uint64(vc.RemapSectorEnd),
			OrgSectorStart:   uint64(vc.OrgSectorStart),
		})
	}
	return r
}
