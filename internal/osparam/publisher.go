// Package osparam publishes the decoded OsParam record to a booted guest
// through the three channels a guest's disk-rediscovery hook may probe:
// a firmware NV variable, a page-aligned runtime-data allocation, and (on
// BIOS, where no variable store survives into real mode) either an
// ACPI-style table or a fixed low-memory buffer. All three are kept in
// sync from the same encoded record.
package osparam

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/firmware/uefi"
	"github.com/ventoy/vbdgo/internal/guid"
	"github.com/ventoy/vbdgo/internal/mmap"
)

// VariableName is the firmware variable name this runtime publishes
// OsParam under.
const VariableName = "VentoyOsParam"

// VentoyOsParamGUID is the vendor GUID scoping the VentoyOsParam
// variable. The spec names only its first field (77772F9B-...); the
// remaining fields are fixed here as a stable constant of this
// implementation (see DESIGN.md).
var VentoyOsParamGUID = guid.MustParse("77772F9B-1D33-4F70-8B02-3C0AC9DCD890")

const (
	efiVariableBootServiceAccess = 0x00000002
	efiVariableRuntimeAccess     = 0x00000004

	// variableAttrs is NV=0, BS=1, RT=1 per the external-interfaces section:
	// the variable does not survive a cold boot, only the current session.
	variableAttrs = efiVariableBootServiceAccess | efiVariableRuntimeAccess
)

// Publisher drives all three OS-param delivery channels from one decoded
// record, so a caller never risks publishing mismatched copies.
type Publisher struct {
	fw uefi.Firmware

	runtimeData *mmap.AnonRegion
}

// NewPublisher returns a Publisher issuing variable and runtime-data
// publications against fw. fw may be nil if only PublishBIOS will ever be
// called (a BIOS-mode boot has no UEFI variable store to write).
func NewPublisher(fw uefi.Firmware) *Publisher {
	return &Publisher{fw: fw}
}

// PublishVariable installs the VentoyOsParam firmware variable (channel 1).
func (p *Publisher) PublishVariable(param chain.OsParam) error {
	if p.fw == nil {
		return fmt.Errorf("osparam: publish variable: no firmware bound")
	}
	record, err := chain.EncodeOsParamRecord(param)
	if err != nil {
		return fmt.Errorf("osparam: encoding record: %w", err)
	}
	if err := p.fw.SetVariable(VariableName, VentoyOsParamGUID, variableAttrs, record); err != nil {
		return fmt.Errorf("osparam: setting %s variable: %w", VariableName, err)
	}
	return nil
}

// PublishRuntimeData writes the encoded record into a freshly allocated,
// page-aligned runtime-services-data region (channel 2) and returns the
// region's address for ImageLocation. The region is owned by p and
// released only by Close, mirroring the real lifecycle: freed on
// clean_env(), otherwise inherited by the booted guest.
func (p *Publisher) PublishRuntimeData(param chain.OsParam) (uint64, error) {
	record, err := chain.EncodeOsParamRecord(param)
	if err != nil {
		return 0, fmt.Errorf("osparam: encoding record: %w", err)
	}
	region, err := mmap.NewAnonRegion(len(record))
	if err != nil {
		return 0, fmt.Errorf("osparam: allocating runtime data region: %w", err)
	}
	copy(region.Data, record)

	if p.runtimeData != nil {
		p.runtimeData.Close()
	}
	p.runtimeData = region
	return uint64(uintptr(unsafe.Pointer(&region.Data[0]))), nil
}

// Close releases the runtime-data region allocated by PublishRuntimeData,
// if any. It is the caller's responsibility to call this only after the
// guest loader has returned control (clean_env()); a guest that never
// returns inherits the mapping instead, per the resource model.
func (p *Publisher) Close() error {
	if p.runtimeData == nil {
		return nil
	}
	err := p.runtimeData.Close()
	p.runtimeData = nil
	return err
}

// BIOSMode selects which of the two BIOS-only delivery shapes PublishBIOS
// produces.
type BIOSMode int

const (
	// BIOSModeFixedBuffer places the raw OsParam record at a fixed
	// low-memory address, for guests that locate it by a raw memory
	// scan. Selected by the mem:<hex-addr> command-line token.
	BIOSModeFixedBuffer BIOSMode = iota
	// BIOSModeACPITable wraps the record in an ACPI-style table a guest
	// discovers through the normal ACPI table walk, for guests that
	// expect ACPI-shaped discovery instead. Selected by the acpi=ibft
	// command-line token.
	BIOSModeACPITable
)

// ResolveBIOSMode inspects the BIOS command-line tokens (§6) and reports
// which of the two BIOS publication shapes the guest expects. Absent an
// explicit acpi=ibft token, this runtime defaults to the fixed buffer
// shape, since mem:<hex-addr> is otherwise meaningless.
func ResolveBIOSMode(cmdline string) BIOSMode {
	for _, tok := range strings.Fields(cmdline) {
		if strings.EqualFold(tok, "acpi=ibft") {
			return BIOSModeACPITable
		}
	}
	return BIOSModeFixedBuffer
}

const (
	ibftSignature  = "iBFT"
	ibftHeaderSize = 20
	ibftRevision   = 1
)

// PublishBIOS renders the BIOS-only delivery shape (channel 3) selected by
// mode: either the bare OsParam record (for a fixed low-memory buffer) or
// that record wrapped in a minimal ACPI-style table a guest can find by
// walking the RSDP/XSDT chain.
func PublishBIOS(param chain.OsParam, mode BIOSMode) ([]byte, error) {
	record, err := chain.EncodeOsParamRecord(param)
	if err != nil {
		return nil, fmt.Errorf("osparam: encoding record: %w", err)
	}
	if mode == BIOSModeFixedBuffer {
		return record, nil
	}
	return buildIBFTTable(record), nil
}

// buildIBFTTable wraps record in a minimal ACPI-style table shaped like
// the iBFT (iSCSI Boot Firmware Table): a standard ACPI header whose
// payload is the OsParam record rather than iSCSI boot structures, enough
// for a guest doing a generic ACPI signature walk to find it.
func buildIBFTTable(record []byte) []byte {
	total := ibftHeaderSize + len(record)
	table := make([]byte, total)
	copy(table[0:4], ibftSignature)
	table[8] = ibftRevision
	copy(table[10:16], "VENTOY")
	copy(table[16:20], "VTOY")
	copy(table[ibftHeaderSize:], record)

	// Length field (offset 4, 4 bytes LE) is filled once the total size
	// is known, then the single-byte checksum (offset 9) is set so the
	// whole table sums to zero mod 256, per the ACPI table convention.
	table[4] = byte(total)
	table[5] = byte(total >> 8)
	table[6] = byte(total >> 16)
	table[7] = byte(total >> 24)

	var sum byte
	for _, b := range table {
		sum += b
	}
	table[9] = byte(256 - int(sum))
	if sum == 0 {
		table[9] = 0
	}
	return table
}
