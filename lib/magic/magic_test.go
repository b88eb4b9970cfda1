package magic

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePE(lfanew int) []byte {
	blob := make([]byte, lfanew+64)
	copy(blob, "MZ")
	binary.LittleEndian.PutUint32(blob[0x3c:], uint32(lfanew))
	copy(blob[lfanew:], "PE\x00\x00")
	return blob
}

func TestDetect(t *testing.T) {
	dosOnly := fakePE(0x80)
	copy(dosOnly[0x80:], "NE")
	badLfanew := fakePE(0x80)
	binary.LittleEndian.PutUint32(badLfanew[0x3c:], 0xffffffff)
	pkcs7 := append([]byte{0x30, 0x82, 0x01, 0x00}, 0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02)
	for _, tc := range []struct {
		name     string
		blob     []byte
		expected FileType
	}{
		{"pe", fakePE(0x80), FileTypePECOFF},
		{"pe far header", fakePE(0x3f0), FileTypePECOFF},
		{"pe header past buffer", fakePE(0x1000), FileTypePECOFF},
		{"pe header at buffer edge", fakePE(0x3fe), FileTypePECOFF},
		{"lfanew past eof", badLfanew, FileTypeUnknown},
		{"dos", dosOnly, FileTypeUnknown},
		{"short mz", []byte("MZ"), FileTypeUnknown},
		{"msi", []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1, 0, 0}, FileTypeMSI},
		{"cab", []byte("MSCF\x00\x00\x00\x00"), FileTypeCAB},
		{"pkcs7", pkcs7, FileTypePKCS7},
		{"empty", nil, FileTypeUnknown},
		{"text", []byte("hello world"), FileTypeUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Detect(bytes.NewReader(tc.blob)))
		})
	}
}

func TestDetectStream(t *testing.T) {
	// plain readers can't seek to a header past the first KiB
	assert.Equal(t, FileTypePECOFF, Detect(io.MultiReader(bytes.NewReader(fakePE(0x80)))))
	assert.Equal(t, FileTypeUnknown, Detect(io.MultiReader(bytes.NewReader(fakePE(0x1000)))))
}

func TestDetectFarHeaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "far.exe")
	require.NoError(t, os.WriteFile(path, fakePE(0x2000), 0644))
	ft, err := DetectFile(path)
	require.NoError(t, err)
	assert.Equal(t, FileTypePECOFF, ft)
}

func TestDetectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.exe")
	require.NoError(t, os.WriteFile(path, fakePE(0x40), 0644))
	ft, err := DetectFile(path)
	require.NoError(t, err)
	assert.Equal(t, FileTypePECOFF, ft)
	assert.Equal(t, "pe-coff", ft.String())

	_, err = DetectFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
