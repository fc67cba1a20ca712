package bios

import "github.com/ventoy/vbdgo/internal/firmware"

// Function is an INT 13h function code, the value a caller loads into AH.
type Function uint8

const (
	FuncReset              Function = 0x00
	FuncLastStatus         Function = 0x01
	FuncReadCHS            Function = 0x02
	FuncWriteCHS           Function = 0x03
	FuncGetParameters      Function = 0x08
	FuncGetDiskType        Function = 0x15
	FuncExtensionsCheck    Function = 0x41
	FuncExtendedRead       Function = 0x42
	FuncExtendedWrite      Function = 0x43
	FuncVerifySectors      Function = 0x44
	FuncExtendedParameters Function = 0x48
	FuncElToritoStatus     Function = 0x4B
	FuncReadBootCatalog    Function = 0x4D
)

// diskTypeFixed is the AH=15h disk-type response for "fixed disk
// present", the only type this adapter ever reports.
const diskTypeFixed = 0x03

// Request is the set of register-level inputs a single INT 13h call
// carries, collapsed from AH/CH/CL/DH/... into named fields.
type Request struct {
	Func           Function
	CHS            CHS
	SectorCount    uint8
	LBA            uint64
	ExtSectorCount uint16
	Buffer         []byte
}

// Response is what an INT 13h call reports back, collapsed from
// AH/CF/... into named fields.
type Response struct {
	Status              firmware.BiosStatus
	DiskType            uint8
	Geometry            Geometry
	ExtensionsSupported bool
}

// Adapter is the BIOS leaf of the dual firmware port: it drives a
// firmware.BlockPort on behalf of a hooked INT 13h vector.
type Adapter struct {
	port     firmware.BlockPort
	geometry Geometry

	bootCatalogSector   uint32
	cachedBootCatalog   []byte
	lastStatus          firmware.BiosStatus
}

// NewAdapter builds a BIOS adapter over port. bootCatalogSector is the
// LBA AH=4Dh falls back to reading when cachedBootCatalog is nil.
func NewAdapter(port firmware.BlockPort, bootCatalogSector uint32, cachedBootCatalog []byte) *Adapter {
	mi := port.MediaInfo()
	return &Adapter{
		port:              port,
		geometry:          SynthesizeGeometry(mi.LastBlock + 1),
		bootCatalogSector: bootCatalogSector,
		cachedBootCatalog: cachedBootCatalog,
	}
}

// Dispatch runs a single INT 13h call against the adapter's port.
func (a *Adapter) Dispatch(req Request) Response {
	switch req.Func {
	case FuncReset:
		a.port.Reset()
		return a.finish(firmware.BiosStatusOK, Response{})
	case FuncLastStatus:
		return Response{Status: a.lastStatus}
	case FuncReadCHS, FuncWriteCHS:
		return a.dispatchCHSIO(req)
	case FuncGetParameters, FuncExtendedParameters:
		return a.finish(firmware.BiosStatusOK, Response{Geometry: a.geometry})
	case FuncGetDiskType:
		return a.finish(firmware.BiosStatusOK, Response{DiskType: diskTypeFixed})
	case FuncExtensionsCheck:
		return a.finish(firmware.BiosStatusOK, Response{ExtensionsSupported: true})
	case FuncExtendedRead, FuncExtendedWrite:
		return a.dispatchExtendedIO(req)
	case FuncVerifySectors:
		return a.dispatchVerifySectors(req)
	case FuncElToritoStatus:
		return a.finish(firmware.BiosStatusOK, Response{})
	case FuncReadBootCatalog:
		return a.dispatchReadBootCatalog(req)
	default:
		return a.finish(firmware.BiosStatusInvalid, Response{})
	}
}

func (a *Adapter) dispatchCHSIO(req Request) Response {
	if !a.geometry.InRange(req.CHS) {
		return a.finish(firmware.BiosStatusInvalid, Response{})
	}
	return a.doIO(req.Func, a.geometry.LBA(req.CHS), uint32(req.SectorCount), req.Buffer)
}

func (a *Adapter) dispatchExtendedIO(req Request) Response {
	return a.doIO(req.Func, req.LBA, uint32(req.ExtSectorCount), req.Buffer)
}

func (a *Adapter) doIO(fn Function, lba uint64, count uint32, buf []byte) Response {
	var err error
	switch fn {
	case FuncReadCHS, FuncExtendedRead:
		err = a.port.Read(lba, count, buf)
	case FuncWriteCHS, FuncExtendedWrite:
		err = a.port.Write(lba, count, buf)
	}
	status := firmware.ToBiosStatus(err)
	return a.finish(status, Response{})
}

func (a *Adapter) dispatchVerifySectors(req Request) Response {
	mi := a.port.MediaInfo()
	if req.LBA+uint64(req.ExtSectorCount) > mi.LastBlock+1 {
		return a.finish(firmware.BiosStatusInvalid, Response{})
	}
	return a.finish(firmware.BiosStatusOK, Response{})
}

func (a *Adapter) dispatchReadBootCatalog(req Request) Response {
	if len(a.cachedBootCatalog) > 0 {
		copy(req.Buffer, a.cachedBootCatalog)
		return a.finish(firmware.BiosStatusOK, Response{})
	}
	return a.doIO(FuncReadCHS, uint64(a.bootCatalogSector), 1, req.Buffer)
}

func (a *Adapter) finish(status firmware.BiosStatus, r Response) Response {
	a.lastStatus = status
	r.Status = status
	return r
}
