// Package runtime owns the single mutable context this runtime needs
// once a chain descriptor has been loaded and registered with firmware.
// Everything that would otherwise live as a collection of file-scope
// globals (the loaded chain, the translation engine, the BIOS "last
// status" byte, the wrapped volume) is a field here instead, reached
// through one constructed value passed to every firmware callback.
//
// This is deliberately not safe for concurrent use: the scheduling model
// is single-threaded cooperative firmware context (INT 13h handlers, EFI
// protocol calls), which never re-enters itself, so there is nothing to
// guard against beyond the serialized calls firmware already guarantees.
package runtime

import (
	"bytes"
	"fmt"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/fileopen"
	"github.com/ventoy/vbdgo/internal/firmware/bios"
	"github.com/ventoy/vbdgo/internal/firmware/uefi"
	"github.com/ventoy/vbdgo/internal/mmap"
	"github.com/ventoy/vbdgo/internal/osparam"
	"github.com/ventoy/vbdgo/internal/physdisk"
	"github.com/ventoy/vbdgo/internal/vbd"
)

// Params is the host-side configuration needed to bring a Runtime up:
// where the chain descriptor and backing disk/image live.
type Params struct {
	// ChainPath is the chain descriptor blob, memory-mapped for its
	// lifetime.
	ChainPath string
	// DiskPath is the physical disk or plain image file the chain's
	// image chunks reference. Ignored when the loaded chain selects
	// memdisk mode; ImagePath is used instead.
	DiskPath string
	// ImagePath is the fully RAM-resident guest image, required only
	// when the chain's mode flags select memdisk.
	ImagePath string
}

// Runtime is the process-wide context a firmware callback dispatches
// against: the loaded chain, the address-translation engine sitting on
// top of it, the BIOS and UEFI adapters driving the same BlockPort, and
// the file-open interception and OS-param publication state layered over
// all of it.
type Runtime struct {
	chain       *chain.Chain
	chainCloser func() error

	diskCloser func() error

	engine vbd.Engine
	Device *vbd.BlockDevice

	// BIOS is nil until a chain is registered for BIOS boot; it is the
	// single dispatch point every INT 13h callback goes through.
	BIOS *bios.Adapter

	uefiFW   uefi.Firmware
	uefiPath uefi.DevicePath

	volume fileopen.VolumeOpener

	Publisher *osparam.Publisher
}

// New loads the chain descriptor and backing disk named by p and builds
// the translation engine over them, but does not yet register anything
// with firmware — call BindUEFI or use BIOS directly for that.
func New(p Params) (*Runtime, error) {
	c, chainCloser, err := chain.LoadMapped(p.ChainPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: loading chain: %w", err)
	}

	engine, diskCloser, err := buildEngine(c, p)
	if err != nil {
		chainCloser()
		return nil, err
	}

	device := vbd.NewBlockDevice(engine)
	rt := &Runtime{
		chain:       c,
		chainCloser: chainCloser,
		diskCloser:  diskCloser,
		engine:      engine,
		Device:      device,
		Publisher:   osparam.NewPublisher(nil),
	}

	if catalogSector := c.BootCatalogSector(); catalogSector != 0 {
		rt.BIOS = bios.NewAdapter(device, catalogSector, c.CachedBootCatalog())
	}

	return rt, nil
}

func buildEngine(c *chain.Chain, p Params) (vbd.Engine, func() error, error) {
	if c.Memdisk() {
		region, err := mmap.NewMmapFile(p.ImagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("runtime: mapping memdisk image %q: %w", p.ImagePath, err)
		}
		engine := vbd.NewMemdiskEngine(bytes.NewReader(region.Data), c.VirtImgSize())
		return engine, region.Close, nil
	}

	disk, err := physdisk.Open(p.DiskPath)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: opening disk %q: %w", p.DiskPath, err)
	}
	engine := vbd.NewDiskEngine(c, disk)
	return engine, disk.Close, nil
}

// Chain returns the loaded chain descriptor.
func (rt *Runtime) Chain() *chain.Chain { return rt.chain }

// PrimaryDevicePath returns the stable, vendor-tagged device path this
// Runtime's VBD handle should be installed under in the non-memdisk
// case: a VTOYBLK-derived name keyed off the chain's disk signature,
// under guid.VentoyVendorDevicePathGUID, so a guest's disk-rediscovery
// hook can find the handle again after ExitBootServices. Memdisk-mode
// callers use uefi.InstallMemdisk's RamDisk-shaped path instead.
func (rt *Runtime) PrimaryDevicePath() uefi.DevicePath {
	return uefi.NewVTOYBLKDevicePath(rt.chain.OsParam().DiskSignature)
}

// BindUEFI records fw and path as the firmware this Runtime will register
// its BlockPort with on Boot, wraps the volume opener fw's filesystem
// driver will use through C6's file-open interception if the chain
// carries a FileReplace record, and switches OS-param publication to
// fw's variable store. Callers construct path with PrimaryDevicePath
// (non-memdisk) or uefi.InstallMemdisk (memdisk mode) before calling
// this.
func (rt *Runtime) BindUEFI(fw uefi.Firmware, path uefi.DevicePath, vol fileopen.VolumeOpener) error {
	rt.uefiFW = fw
	rt.uefiPath = path

	wrapped, err := fileopen.Wrap(vol, rt.Device, rt.chain.FileReplace(), rt.chain.VirtChunks())
	if err != nil {
		return fmt.Errorf("runtime: wrapping volume opener: %w", err)
	}
	rt.volume = wrapped

	rt.Publisher = osparam.NewPublisher(fw)
	return nil
}

// Boot installs the BLOCK_IO protocol at the device path given to
// BindUEFI, connects the filesystem driver stack, and starts the first
// candidate boot file that loads, retrying a controller connect once per
// C5's retry sequence.
func (rt *Runtime) Boot(candidates []string) (uefi.Handle, error) {
	if rt.uefiFW == nil {
		return 0, fmt.Errorf("runtime: no UEFI firmware bound")
	}
	return uefi.Boot(rt.uefiFW, rt.uefiPath, candidates)
}

// Volume returns the volume opener file-open requests should go through,
// wrapped for C6 interception if the chain has an active FileReplace
// record, or the bare opener otherwise.
func (rt *Runtime) Volume() fileopen.VolumeOpener { return rt.volume }

// Close releases every resource this Runtime owns: the mapped chain
// blob, the backing disk/image mapping, and any runtime-data region
// PublishRuntimeData allocated. This is clean_env() — the explicit
// unload path; if a guest loader never returns, none of this runs and
// the guest inherits the memory instead, per the resource model.
func (rt *Runtime) Close() error {
	var firstErr error
	if rt.Publisher != nil {
		if err := rt.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.diskCloser != nil {
		if err := rt.diskCloser(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.chainCloser != nil {
		if err := rt.chainCloser(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
