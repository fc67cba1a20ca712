package osparam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/firmware/uefi"
	"github.com/ventoy/vbdgo/internal/guid"
)

func sampleOsParam() chain.OsParam {
	return chain.OsParam{
		Magic:          guid.MustParse("12345678-1234-1234-1234-123456789012"),
		DiskSize:       1 << 30,
		PartitionIndex: 1,
		FSType:         1,
		ImageSize:      1 << 20,
		ImagePath:      `\EFI\boot\image.iso`,
	}
}

func TestPublishVariable_InstallsUnderVentoyGUID(t *testing.T) {
	fw := uefi.NewFake()
	p := NewPublisher(fw)

	require.NoError(t, p.PublishVariable(sampleOsParam()))

	v, ok := fw.Variable(VariableName, VentoyOsParamGUID)
	require.True(t, ok)
	assert.Len(t, v, 512)
}

func TestPublishVariable_NoFirmwareBoundFails(t *testing.T) {
	p := NewPublisher(nil)
	err := p.PublishVariable(sampleOsParam())
	assert.Error(t, err)
}

func TestPublishRuntimeData_ReturnsNonZeroAddressAndMatchesRecord(t *testing.T) {
	p := NewPublisher(nil)
	defer p.Close()

	record, err := chain.EncodeOsParamRecord(sampleOsParam())
	require.NoError(t, err)

	addr, err := p.PublishRuntimeData(sampleOsParam())
	require.NoError(t, err)
	assert.NotZero(t, addr)
	assert.Equal(t, record, p.runtimeData.Data)
}

func TestPublishRuntimeData_SecondCallReleasesFirstRegion(t *testing.T) {
	p := NewPublisher(nil)
	defer p.Close()

	_, err := p.PublishRuntimeData(sampleOsParam())
	require.NoError(t, err)
	first := p.runtimeData

	_, err = p.PublishRuntimeData(sampleOsParam())
	require.NoError(t, err)
	assert.Nil(t, first.Data)
}

func TestResolveBIOSMode_DefaultsToFixedBuffer(t *testing.T) {
	assert.Equal(t, BIOSModeFixedBuffer, ResolveBIOSMode("debug memdisk"))
}

func TestResolveBIOSMode_ExplicitACPIToken(t *testing.T) {
	assert.Equal(t, BIOSModeACPITable, ResolveBIOSMode("memdisk acpi=ibft debug"))
}

func TestPublishBIOS_FixedBufferIsBareRecord(t *testing.T) {
	record, err := chain.EncodeOsParamRecord(sampleOsParam())
	require.NoError(t, err)

	out, err := PublishBIOS(sampleOsParam(), BIOSModeFixedBuffer)
	require.NoError(t, err)
	assert.Equal(t, record, out)
}

func TestPublishBIOS_ACPITableWrapsRecordWithValidChecksum(t *testing.T) {
	out, err := PublishBIOS(sampleOsParam(), BIOSModeACPITable)
	require.NoError(t, err)

	require.True(t, len(out) > ibftHeaderSize)
	assert.Equal(t, []byte(ibftSignature), out[0:4])

	var sum byte
	for _, b := range out {
		sum += b
	}
	assert.Zero(t, sum)

	record, err := chain.EncodeOsParamRecord(sampleOsParam())
	require.NoError(t, err)
	assert.Equal(t, record, out[ibftHeaderSize:])
}
