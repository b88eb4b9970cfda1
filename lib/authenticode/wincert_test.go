package authenticode

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackWinCertificate(t *testing.T) {
	for _, tc := range []struct {
		sigLen, total int
	}{
		{10, 24},
		{16, 24},
		{17, 32},
		{1, 16},
	} {
		sig := bytes.Repeat([]byte{0xff}, tc.sigLen)
		packed := PackWinCertificate(sig)
		require.Len(t, packed, tc.total, "length %d", tc.sigLen)
		assert.Equal(t, uint32(tc.total), binary.LittleEndian.Uint32(packed))
		assert.Equal(t, []byte{0x00, 0x02, 0x02, 0x00}, packed[4:8])
		assert.Equal(t, sig, packed[8:8+tc.sigLen])
		assert.Equal(t, make([]byte, tc.total-8-tc.sigLen), packed[8+tc.sigLen:])
	}
}

func TestPackageSignature(t *testing.T) {
	sig := []byte("0123456789")
	assert.Equal(t, sig, PackageSignature(sig, false))
	assert.Equal(t, PackWinCertificate(sig), PackageSignature(sig, true))
}

func TestUnpackCertificateTable(t *testing.T) {
	first := []byte("0123456789")
	second := bytes.Repeat([]byte{1}, 16)
	other := PackWinCertificate([]byte("x509"))
	binary.LittleEndian.PutUint16(other[6:], 0x0001)

	var table []byte
	table = append(table, PackWinCertificate(first)...)
	table = append(table, other...)
	table = append(table, PackWinCertificate(second)...)
	sigs, err := UnpackCertificateTable(table)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	// padding comes along with the signature
	assert.Len(t, sigs[0], 16)
	assert.Equal(t, first, sigs[0][:10])
	assert.Equal(t, second, sigs[1])

	_, err = UnpackCertificateTable(table[:4])
	assert.Error(t, err)

	bad := PackWinCertificate(first)
	binary.LittleEndian.PutUint16(bad[4:], 0x0100)
	_, err = UnpackCertificateTable(bad)
	assert.ErrorContains(t, err, "unsupported revision")

	bad = PackWinCertificate(first)
	binary.LittleEndian.PutUint32(bad, 100)
	_, err = UnpackCertificateTable(bad)
	assert.ErrorContains(t, err, "bad entry length")
}
