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
	"crypto"
	"crypto/hmac"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrNoSignatures = errors.New("image does not contain any signatures")

func readPEMarkers(r io.ReaderAt) (*peMarkers, error) {
	m := new(peMarkers)
	if err := parseCoffHeader(r, m); err != nil {
		return nil, err
	}
	if err := findCertTable(r, m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseCoffHeader(r io.ReaderAt, m *peMarkers) error {
	dosheader, err := readNAt(r, 0, 96)
	if err != nil {
		return fmt.Errorf("reading DOS header: %w", err)
	}
	if !(dosheader[0] == 'M' && dosheader[1] == 'Z') {
		return errors.New("not a PE file")
	}
	pestart := int64(binary.LittleEndian.Uint32(dosheader[0x3c:]))
	if sign, err := readNAt(r, pestart, 4); err != nil {
		return err
	} else if !(sign[0] == 'P' && sign[1] == 'E' && sign[2] == 0 && sign[3] == 0) {
		return fmt.Errorf("invalid PE COFF file signature of %v", sign)
	}
	posCoffHeader := pestart + 4

	var coffHeader pe.FileHeader
	if err := readBinaryAt(r, posCoffHeader, 20, &coffHeader); err != nil {
		return err
	}
	m.posOptHeader = posCoffHeader + 20
	m.sizeOfOpt = int64(coffHeader.SizeOfOptionalHeader)
	m.posSecTbl = m.posOptHeader + m.sizeOfOpt
	return nil
}

func findCertTable(r io.ReaderAt, m *peMarkers) error {
	var optMagic uint16
	if err := readBinaryAt(r, m.posOptHeader, 2, &optMagic); err != nil {
		return err
	}
	var dd pe.DataDirectory
	var numDirs uint32
	m.posCksum = m.posOptHeader + 64
	switch optMagic {
	case 0x10b:
		// PE32
		var opt pe.OptionalHeader32
		if err := readBinaryAt(r, m.posOptHeader, m.sizeOfOpt, &opt); err != nil {
			return err
		}
		numDirs = opt.NumberOfRvaAndSizes
		dd = opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
		m.posDDCert = m.posOptHeader + 128
	case 0x20b:
		// PE32+
		var opt pe.OptionalHeader64
		if err := readBinaryAt(r, m.posOptHeader, m.sizeOfOpt, &opt); err != nil {
			return err
		}
		numDirs = opt.NumberOfRvaAndSizes
		dd = opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
		m.posDDCert = m.posOptHeader + 144
	default:
		return errors.New("unrecognized optional header magic")
	}
	if numDirs <= pe.IMAGE_DIRECTORY_ENTRY_SECURITY || m.posDDCert+8 > m.posSecTbl {
		return errors.New("optional header has no certificate table entry")
	}
	m.posCerts = int64(dd.VirtualAddress)
	m.sizeOfCerts = int64(dd.Size)
	m.posTrailer = m.posCerts + m.sizeOfCerts
	return nil
}

// DigestPE computes the Authenticode image digest of a PE file the same way
// osslsigncode does: the whole file in order, skipping the checksum, the
// certificate table directory entry, and the certificate table itself. An
// unsigned image whose length is not a multiple of 8 is digested as if it had
// been zero-padded, since that padding is added when the table is appended.
func DigestPE(r io.ReaderAt, size int64, hash crypto.Hash) ([]byte, error) {
	m, err := readPEMarkers(r)
	if err != nil {
		return nil, err
	}
	signed := m.sizeOfCerts != 0
	end := size
	if signed {
		if m.posTrailer > size {
			return nil, errors.New("certificate table extends past end of file")
		}
		end = m.posCerts
	}
	segments := new(readerList)
	segments.Append(0, m.posCksum)
	segments.Append(m.posCksum+4, m.posDDCert)
	segments.Append(m.posDDCert+8, end)
	if signed {
		segments.Append(m.posTrailer, size)
	}
	d := hash.New()
	if _, err := io.Copy(d, segments.Reader(r)); err != nil {
		return nil, err
	}
	if pad := size % 8; !signed && pad != 0 {
		d.Write(make([]byte, 8-pad))
	}
	return d.Sum(nil), nil
}

// ReadPESignatures returns the raw PKCS#7 blobs from the certificate table
// of a PE image that is size bytes long
func ReadPESignatures(r io.ReaderAt, size int64) ([][]byte, error) {
	m, err := readPEMarkers(r)
	if err != nil {
		return nil, err
	}
	if m.sizeOfCerts == 0 {
		return nil, ErrNoSignatures
	}
	if m.posTrailer > size {
		return nil, errors.New("certificate table extends past end of file")
	}
	blob, err := readNAt(r, m.posCerts, int(m.sizeOfCerts))
	if err != nil {
		return nil, fmt.Errorf("reading certificate table: %w", err)
	}
	sigs, err := UnpackCertificateTable(blob)
	if err != nil {
		return nil, err
	} else if len(sigs) == 0 {
		return nil, ErrNoSignatures
	}
	return sigs, nil
}

// VerifyPE checks every signature in a PE image. Unless skipDigests is set the
// image digest is recomputed and compared to the one each signature commits
// to.
func VerifyPE(r io.ReaderAt, size int64, skipDigests bool) ([]*Signature, error) {
	blobs, err := ReadPESignatures(r, size)
	if err != nil {
		return nil, err
	}
	computed := make(map[crypto.Hash][]byte)
	sigs := make([]*Signature, 0, len(blobs))
	for _, blob := range blobs {
		sig, err := VerifySignature(blob)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
		if skipDigests {
			continue
		}
		calc := computed[sig.ImageHash]
		if calc == nil {
			calc, err = DigestPE(r, size, sig.ImageHash)
			if err != nil {
				return nil, err
			}
			computed[sig.ImageHash] = calc
		}
		if expected := sig.Indirect.MessageDigest.Digest; !hmac.Equal(calc, expected) {
			return nil, fmt.Errorf("image digest mismatch: computed %x, signature has %x", calc, expected)
		}
	}
	return sigs, nil
}
