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
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"

	"github.com/sassoftware/winsign/lib/x509tools"
)

// SignerTemplate carries everything about a signer except the signature and
// the certificates
type SignerTemplate struct {
	Hash                      crypto.Hash
	ContentInfo               ContentInfo
	AuthenticatedAttributes   AttributeList
	UnauthenticatedAttributes AttributeList
}

// Encode assembles a DER SignedData with a single signer. The first
// certificate identifies the signer and determines the signature algorithm;
// the rest are carried along in order.
func Encode(certs []*x509.Certificate, tmpl SignerTemplate, signature []byte) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("pkcs7: at least one certificate is required")
	}
	if len(signature) == 0 {
		return nil, errors.New("pkcs7: signature is empty")
	}
	digestAlg, ok := x509tools.PkixDigestAlgorithm(tmpl.Hash)
	if !ok {
		return nil, errors.New("pkcs7: unsupported digest algorithm")
	}
	leaf := certs[0]
	pkeyAlg, ok := x509tools.PkixPublicKeyAlgorithm(leaf.PublicKey)
	if !ok {
		return nil, errors.New("pkcs7: unsupported public key algorithm")
	}
	psd := ContentInfoSignedData{
		ContentType: OidSignedData,
		Content: SignedData{
			Version:                    1,
			DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{digestAlg},
			ContentInfo:                tmpl.ContentInfo,
			Certificates:               MarshalCertificates(certs),
			SignerInfos: []SignerInfo{{
				Version: 1,
				IssuerAndSerialNumber: IssuerAndSerial{
					IssuerName:   asn1.RawValue{FullBytes: leaf.RawIssuer},
					SerialNumber: leaf.SerialNumber,
				},
				DigestAlgorithm:           digestAlg,
				AuthenticatedAttributes:   tmpl.AuthenticatedAttributes,
				DigestEncryptionAlgorithm: pkeyAlg,
				EncryptedDigest:           signature,
				UnauthenticatedAttributes: tmpl.UnauthenticatedAttributes,
			}},
		},
	}
	return asn1.Marshal(psd)
}
