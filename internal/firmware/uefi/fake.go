package uefi

import (
	"fmt"
	"sync"

	"github.com/ventoy/vbdgo/internal/firmware"
	"github.com/ventoy/vbdgo/internal/guid"
)

// notFoundError is a Firmware error that reports true from NotFound,
// satisfying the retryableNotFound contract Boot's retry loop checks.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }
func (e notFoundError) NotFound() bool { return true }

// Fake is an in-memory Firmware, structured as a small graph of handles
// the way the teacher's fuse.RecoverFS models a filesystem as a graph of
// in-memory nodes rather than real inodes. It lets the UEFI adapter be
// exercised without a real boot-services table.
type Fake struct {
	mtx sync.Mutex

	nextHandle  Handle
	blockIO     map[Handle]firmware.BlockPort
	devicePaths map[Handle]DevicePath
	ramDisks    []ramDisk
	images      map[string][]byte // boot file path -> PE/COFF bytes present on the ramdisk/device
	variables   map[variableKey][]byte

	// ConnectFails, when > 0, makes that many subsequent
	// ConnectController calls report EFI_NOT_FOUND before succeeding.
	ConnectFails int
}

type ramDisk struct {
	start, size uint64
	path        DevicePath
}

type variableKey struct {
	name   string
	vendor guid.GUID
}

// NewFake builds an empty Fake firmware. Register boot file presence with
// AddImage before calling Boot against it.
func NewFake() *Fake {
	return &Fake{
		blockIO:     make(map[Handle]firmware.BlockPort),
		devicePaths: make(map[Handle]DevicePath),
		images:      make(map[string][]byte),
		variables:   make(map[variableKey][]byte),
	}
}

// AddImage registers path as a loadable boot file, the fake equivalent of
// the iso9660 driver resolving that path to PE/COFF bytes on disk.
func (f *Fake) AddImage(path string, data []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.images[path] = data
}

// BindBlockPort attaches port as the BLOCK_IO backing for handle h,
// letting tests install a specific firmware.BlockPort ahead of a Boot
// call that references h's device path.
func (f *Fake) BindBlockPort(h Handle, port firmware.BlockPort) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.blockIO[h] = port
}

func (f *Fake) InstallBlockIO(path DevicePath) (Handle, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.nextHandle++
	h := f.nextHandle
	f.devicePaths[h] = path
	return h, nil
}

func (f *Fake) InstallRamDisk(start, size uint64) (DevicePath, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	path := DevicePath(fmt.Sprintf("ramdisk:%x:%s", start, RamDiskVirtualCDGUID))
	f.ramDisks = append(f.ramDisks, ramDisk{start: start, size: size, path: path})
	return path, nil
}

func (f *Fake) ConnectController(h Handle) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if _, ok := f.devicePaths[h]; !ok {
		return notFoundError("uefi/fake: unknown handle")
	}
	if f.ConnectFails > 0 {
		f.ConnectFails--
		return notFoundError("uefi/fake: filesystem driver not yet bound")
	}
	return nil
}

func (f *Fake) StartImage(h Handle, path string) (Handle, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if _, ok := f.devicePaths[h]; !ok {
		return 0, notFoundError("uefi/fake: unknown handle")
	}
	if _, ok := f.images[path]; !ok {
		return 0, notFoundError(fmt.Sprintf("uefi/fake: no image at %s", path))
	}
	f.nextHandle++
	return f.nextHandle, nil
}

func (f *Fake) SetVariable(name string, vendor guid.GUID, attrs uint32, data []byte) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.variables[variableKey{name: name, vendor: vendor}] = append([]byte(nil), data...)
	return nil
}

// Variable returns a previously set variable's value, for test assertions.
func (f *Fake) Variable(name string, vendor guid.GUID) ([]byte, bool) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	v, ok := f.variables[variableKey{name: name, vendor: vendor}]
	return v, ok
}

var _ Firmware = (*Fake)(nil)
