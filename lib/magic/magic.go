/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package magic

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypePKCS7
	FileTypePECOFF
	FileTypeMSI
	FileTypeCAB
)

var fileTypeNames = map[FileType]string{
	FileTypeUnknown: "unknown",
	FileTypePKCS7:   "pkcs7",
	FileTypePECOFF:  "pe-coff",
	FileTypeMSI:     "msi",
	FileTypeCAB:     "cab",
}

func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

var peSignature = []byte("PE\x00\x00")

// Detect the type of a file from its first few bytes. A PE header beyond the
// first KiB is only found if r is also an io.ReaderAt.
func Detect(r io.Reader) FileType {
	var buf [1024]byte
	n, err := io.ReadFull(r, buf[:])
	if n == 0 || (err != nil && err != io.ErrUnexpectedEOF) {
		return FileTypeUnknown
	}
	blob := buf[:n]
	switch {
	case bytes.HasPrefix(blob, []byte("MZ")):
		if len(blob) < 0x40 {
			break
		}
		if isPE(r, blob) {
			return FileTypePECOFF
		}
	case bytes.HasPrefix(blob, []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}):
		return FileTypeMSI
	case bytes.HasPrefix(blob, []byte("MSCF")):
		return FileTypeCAB
	case bytes.Contains(blob, []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02}):
		return FileTypePKCS7
	}
	return FileTypeUnknown
}

func isPE(r io.Reader, blob []byte) bool {
	reloc := int64(binary.LittleEndian.Uint32(blob[0x3c:0x40]))
	if reloc+4 <= int64(len(blob)) {
		return bytes.Equal(blob[reloc:reloc+4], peSignature)
	}
	ra, ok := r.(io.ReaderAt)
	if !ok {
		return false
	}
	var sig [4]byte
	if _, err := ra.ReadAt(sig[:], reloc); err != nil {
		return false
	}
	return bytes.Equal(sig[:], peSignature)
}

// DetectFile opens path and detects its type
func DetectFile(path string) (FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()
	return Detect(f), nil
}
