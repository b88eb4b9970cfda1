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

package pkcs7

import (
	"bytes"
	"crypto"
	"encoding/asn1"
	"fmt"

	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/x509tools"
)

// Unmarshal decodes a DER-encoded ContentInfo holding a SignedData.
//
// Trailing zero bytes are tolerated, since signatures pulled out of a PE
// certificate table are padded to a multiple of 8 bytes. Anything else after
// the structure is rejected.
func Unmarshal(der []byte) (*ContentInfoSignedData, error) {
	psd := new(ContentInfoSignedData)
	rest, err := asn1.Unmarshal(der, psd)
	if err != nil {
		return nil, &sigerrors.MalformedSignature{Reason: "decoding PKCS#7", Err: err}
	} else if len(bytes.TrimRight(rest, "\x00")) != 0 {
		return nil, &sigerrors.MalformedSignature{Reason: "trailing garbage after PKCS#7 structure"}
	}
	if !psd.ContentType.Equal(OidSignedData) {
		return nil, &sigerrors.MalformedSignature{Reason: fmt.Sprintf("content type is %s, not SignedData", psd.ContentType)}
	}
	return psd, nil
}

// SoleSignerInfo returns the SignerInfo of a single-signer SignedData.
// Signatures with zero or several signers are rejected rather than silently
// picking one.
func (sd *SignedData) SoleSignerInfo() (*SignerInfo, error) {
	if n := len(sd.SignerInfos); n != 1 {
		return nil, &sigerrors.MalformedSignature{Reason: fmt.Sprintf("expected exactly one SignerInfo, found %d", n)}
	}
	return &sd.SignerInfos[0], nil
}

// ExtractDigest returns the digest algorithm and the messageDigest
// authenticated attribute of the sole signer. The digest is returned exactly
// as stored and is not recomputed.
func (sd *SignedData) ExtractDigest() (crypto.Hash, []byte, error) {
	si, err := sd.SoleSignerInfo()
	if err != nil {
		return 0, nil, err
	}
	hash, ok := x509tools.PkixDigestToHash(si.DigestAlgorithm)
	if !ok || !hash.Available() {
		return 0, nil, &sigerrors.MalformedSignature{Reason: fmt.Sprintf("unsupported digest algorithm %s", si.DigestAlgorithm.Algorithm)}
	}
	var digest []byte
	if err := si.AuthenticatedAttributes.GetOne(OidAttributeMessageDigest, &digest); err != nil {
		return 0, nil, &sigerrors.MalformedSignature{Reason: "reading messageDigest attribute", Err: err}
	}
	if len(digest) != hash.Size() {
		return 0, nil, &sigerrors.MalformedSignature{Reason: fmt.Sprintf("messageDigest is %d bytes, expected %d for %s", len(digest), hash.Size(), hash)}
	}
	return hash, digest, nil
}
