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
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/x509tools"
	"github.com/sassoftware/winsign/token"
)

type ResignOptions struct {
	// SigningTime replaces the signing-time attribute. If zero, whatever the
	// template carried is kept as-is.
	SigningTime time.Time
}

// Resign replaces the signer of an Authenticode signature.
//
// The content (and therefore the image digest) of the template is carried
// over untouched, as is its messageDigest. Descriptive attributes such as the
// opus info and statement type are kept. A new signature over the
// authenticated attributes is obtained from signer, and the result is encoded
// with certs, which must start with the certificate matching the signer's key.
func Resign(ctx context.Context, tmpl *pkcs7.ContentInfoSignedData, certs []*x509.Certificate, signer token.Signer, opts ResignOptions) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("at least one certificate is required")
	}
	sd := &tmpl.Content
	if !sd.ContentInfo.ContentType.Equal(OidSpcIndirectDataContent) {
		return nil, &sigerrors.MalformedSignature{Reason: "not an authenticode signature"}
	}
	si, err := sd.SoleSignerInfo()
	if err != nil {
		return nil, err
	}
	hash, digest, err := sd.ExtractDigest()
	if err != nil {
		return nil, err
	}
	attrs, err := resignAttributes(si.AuthenticatedAttributes, digest, opts)
	if err != nil {
		return nil, err
	}
	attrBytes, err := attrs.Bytes()
	if err != nil {
		return nil, err
	}
	d := hash.New()
	d.Write(attrBytes)
	attrDigest := d.Sum(nil)

	sig, err := signer.SignDigest(ctx, attrDigest, hash)
	if err != nil {
		return nil, &sigerrors.SigningFailed{Err: err}
	} else if len(sig) == 0 {
		return nil, &sigerrors.SigningFailed{Err: sigerrors.ErrEmptySignature}
	}
	if err := x509tools.Verify(certs[0].PublicKey, hash, attrDigest, sig); err != nil {
		return nil, &sigerrors.SigningFailed{Err: fmt.Errorf("signature does not match certificate %q: %w", x509tools.FormatSubject(certs[0]), err)}
	}
	return pkcs7.Encode(certs, pkcs7.SignerTemplate{
		Hash:                    hash,
		ContentInfo:             sd.ContentInfo,
		AuthenticatedAttributes: attrs,
	}, sig)
}

// rebuild the authenticated attributes: content type and message digest
// first, then everything else from the template
func resignAttributes(template pkcs7.AttributeList, digest []byte, opts ResignOptions) (pkcs7.AttributeList, error) {
	var attrs pkcs7.AttributeList
	if err := attrs.Add(pkcs7.OidAttributeContentType, OidSpcIndirectDataContent); err != nil {
		return nil, err
	}
	if err := attrs.Add(pkcs7.OidAttributeMessageDigest, digest); err != nil {
		return nil, err
	}
	for _, attr := range template {
		switch {
		case attr.Type.Equal(pkcs7.OidAttributeContentType),
			attr.Type.Equal(pkcs7.OidAttributeMessageDigest):
			continue
		case attr.Type.Equal(pkcs7.OidAttributeSigningTime) && !opts.SigningTime.IsZero():
			continue
		}
		attrs = append(attrs, attr)
	}
	if !opts.SigningTime.IsZero() {
		if err := attrs.Add(pkcs7.OidAttributeSigningTime, opts.SigningTime.UTC()); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}
