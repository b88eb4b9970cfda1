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
	"fmt"

	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/x509tools"
)

type Signature struct {
	pkcs7.Signature
	Indirect  SpcIndirectDataContent
	ImageHash crypto.Hash
	Opus      OpusInfo
}

// VerifySignature decodes an Authenticode signature and checks it against the
// embedded signer certificate. The image digest it commits to is returned but
// not checked; see VerifyPE. Certificate chains are not validated.
func VerifySignature(der []byte) (*Signature, error) {
	psd, err := pkcs7.Unmarshal(der)
	if err != nil {
		return nil, err
	}
	if !psd.Content.ContentInfo.ContentType.Equal(OidSpcIndirectDataContent) {
		return nil, &sigerrors.MalformedSignature{Reason: "not an authenticode signature"}
	}
	sig, err := psd.Content.Verify(false)
	if err != nil {
		return nil, err
	}
	var indirect SpcIndirectDataContent
	if err := psd.Content.ContentInfo.Unmarshal(&indirect); err != nil {
		return nil, &sigerrors.MalformedSignature{Reason: "decoding SpcIndirectDataContent", Err: err}
	}
	hash, ok := x509tools.PkixDigestToHash(indirect.MessageDigest.DigestAlgorithm)
	if !ok || !hash.Available() {
		return nil, fmt.Errorf("unsupported hash algorithm %s", indirect.MessageDigest.DigestAlgorithm.Algorithm)
	}
	opus, err := ParseOpusInfo(sig.SignerInfo.AuthenticatedAttributes)
	if err != nil {
		return nil, &sigerrors.MalformedSignature{Reason: "decoding SpcSpOpusInfo", Err: err}
	}
	return &Signature{
		Signature: sig,
		Indirect:  indirect,
		ImageHash: hash,
		Opus:      opus,
	}, nil
}
