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

package authenticode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	WinCertRevision2  = 0x0200
	WinCertTypePKCS7  = 0x0002
	winCertHeaderSize = 8
	winCertAlignment  = 8
)

// WIN_CERTIFICATE header
type certInfo struct {
	Length          uint32
	Revision        uint16
	CertificateType uint16
}

// PackWinCertificate wraps a PKCS#7 signature in a WIN_CERTIFICATE for
// inclusion in a PE certificate table. The signature is zero-padded to a
// multiple of 8 bytes and the length field covers the header and the padding.
func PackWinCertificate(sig []byte) []byte {
	padded := (len(sig) + winCertAlignment - 1) / winCertAlignment * winCertAlignment
	info := certInfo{
		Length:          uint32(winCertHeaderSize + padded),
		Revision:        WinCertRevision2,
		CertificateType: WinCertTypePKCS7,
	}
	var buf bytes.Buffer
	buf.Grow(winCertHeaderSize + padded)
	_ = binary.Write(&buf, binary.LittleEndian, info)
	buf.Write(sig)
	buf.Write(make([]byte, padded-len(sig)))
	return buf.Bytes()
}

// PackageSignature prepares a signature for the attach tool. PE images take a
// WIN_CERTIFICATE; every other container takes the bare PKCS#7 bytes.
func PackageSignature(sig []byte, isPE bool) []byte {
	if isPE {
		return PackWinCertificate(sig)
	}
	return sig
}

// UnpackCertificateTable splits a PE certificate table into the PKCS#7
// signatures it contains. Entries of other certificate types are skipped.
func UnpackCertificateTable(blob []byte) ([][]byte, error) {
	var sigs [][]byte
	for len(blob) != 0 {
		if len(blob) < winCertHeaderSize {
			return nil, errors.New("invalid certificate table: truncated header")
		}
		var info certInfo
		_ = binary.Read(bytes.NewReader(blob[:winCertHeaderSize]), binary.LittleEndian, &info)
		end := (int(info.Length) + winCertAlignment - 1) / winCertAlignment * winCertAlignment
		size := int(info.Length) - winCertHeaderSize
		if size < 0 || int(info.Length) > len(blob) {
			return nil, errors.New("invalid certificate table: bad entry length")
		}
		if end > len(blob) {
			// tolerate a missing pad after the last entry
			end = len(blob)
		}
		switch {
		case info.Revision != WinCertRevision2:
			return nil, fmt.Errorf("invalid certificate table: unsupported revision 0x%04x", info.Revision)
		case info.CertificateType == WinCertTypePKCS7:
			sigs = append(sigs, blob[winCertHeaderSize:winCertHeaderSize+size])
		}
		blob = blob[end:]
	}
	return sigs, nil
}
