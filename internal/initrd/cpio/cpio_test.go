package cpio

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseHexField(t *testing.T, archive []byte, offset int) uint32 {
	t.Helper()
	v, err := strconv.ParseUint(string(archive[offset:offset+8]), 16, 32)
	require.NoError(t, err)
	return uint32(v)
}

func TestWriteNewc_SingleEntryRoundTrips(t *testing.T) {
	archive := WriteNewc([]Entry{
		{Name: "hook/run.sh", Mode: 0100755, Data: []byte("#!/bin/sh\necho hi\n")},
	})

	require.True(t, len(archive) >= blockSize)
	assert.Equal(t, 0, len(archive)%blockSize)
	assert.Equal(t, []byte(magic), archive[:6])

	nameLen := parseHexField(t, archive, 94)
	name := archive[headerSize : headerSize+int(nameLen)-1]
	assert.Equal(t, "hook/run.sh", string(name))

	fileSize := parseHexField(t, archive, 54)
	assert.Equal(t, uint32(len("#!/bin/sh\necho hi\n")), fileSize)
}

func TestWriteNewc_EndsWithTrailer(t *testing.T) {
	archive := WriteNewc(nil)
	assert.True(t, bytes.Contains(archive, []byte(trailerName)))
}

func TestWriteNewc_MultipleEntriesAllPresent(t *testing.T) {
	archive := WriteNewc([]Entry{
		{Name: "a", Data: []byte("x")},
		{Name: "b", Data: []byte("yy")},
	})
	assert.True(t, bytes.Contains(archive, []byte("a\x00")))
	assert.True(t, bytes.Contains(archive, []byte("b\x00")))
	assert.True(t, bytes.Contains(archive, []byte(trailerName)))
}
