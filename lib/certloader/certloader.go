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

package certloader

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/x509tools"
)

const asn1Magic = 0x30 // weak but good enough?
var pkcs7SignedData = []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02}

type Certificate struct {
	Leaf         *x509.Certificate
	Certificates []*x509.Certificate
	PrivateKey   crypto.PrivateKey
}

// Chain returns the leaf and any intermediates, omitting self-signed roots
func (s *Certificate) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i, cert := range s.Certificates {
		if i > 0 && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			// omit root CA
			continue
		}
		chain = append(chain, cert)
	}
	return chain
}

func (s *Certificate) Signer() crypto.Signer {
	signer, _ := s.PrivateKey.(crypto.Signer)
	return signer
}

// Parse a private key from a blob of PEM or DER data
func ParsePrivateKey(blob []byte) (crypto.PrivateKey, error) {
	if len(blob) >= 1 && blob[0] == asn1Magic {
		// already DER form
		return x509tools.ParsePrivateKey(blob)
	}
	return x509tools.ParsePEMPrivateKey(blob)
}

// Parse a list of certificates, PEM or DER, X509 or PKCS#7
func ParseCertificates(pemData []byte) (*Certificate, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already in DER form
		return parseCertificates(pemData)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		} else if block.Type == "CERTIFICATE" || block.Type == "PKCS7" {
			newcerts, err := parseCertificates(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, newcerts.Certificates...)
		}
	}
	if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// Parse certificates from DER
func parseCertificates(der []byte) (*Certificate, error) {
	var certs []*x509.Certificate
	var err error
	head := der
	if len(head) > 32 {
		head = head[:32]
	}
	if bytes.Contains(head, pkcs7SignedData) {
		certs, err = pkcs7.ParseCertificates(der)
	} else {
		certs, err = x509.ParseCertificates(der)
	}
	if err != nil {
		return nil, err
	} else if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// LoadCertificatesFile reads every certificate from a PEM, DER or PKCS#7 file
func LoadCertificatesFile(path string) ([]*x509.Certificate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertificates(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cert.Certificates, nil
}

// LoadX509KeyPair extends the tls version of this function by parsing p7b
// files. If keyFile is a PKCS#12 bundle, certFile may be empty and the
// certificates come from the bundle; prompt is used for its password.
func LoadX509KeyPair(certFile, keyFile string, prompt passprompt.PasswordGetter) (*Certificate, error) {
	keyblob, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	if IsPKCS12(keyFile, keyblob) {
		cert, err := ParsePKCS12(keyblob, prompt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keyFile, err)
		}
		if certFile != "" {
			// explicit certificates replace whatever came with the bundle
			certs, err := LoadCertificatesFile(certFile)
			if err != nil {
				return nil, err
			}
			cert.Leaf, cert.Certificates = certs[0], certs
		}
		if !x509tools.SameKey(cert.Leaf.PublicKey, cert.PrivateKey) {
			return nil, errors.New("private key does not match certificate")
		}
		return cert, nil
	}
	if certFile == "" {
		return nil, errors.New("a certificate file is required")
	}
	certblob, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(keyblob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyFile, err)
	}
	cert, err := ParseCertificates(certblob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certFile, err)
	}
	if !x509tools.SameKey(cert.Leaf.PublicKey, key) {
		return nil, errors.New("private key does not match certificate")
	}
	cert.PrivateKey = key
	return cert, nil
}

// LoadTokenCertificates loads the certificate chain for a key held in a token
// and checks that the leaf matches it. Cross-certificates are appended after
// the chain in the order given.
func LoadTokenCertificates(pub crypto.PublicKey, x509cert string, crossCerts []string) (*Certificate, error) {
	if x509cert == "" {
		return nil, errors.New("no certificate configured for key")
	}
	blob, err := os.ReadFile(x509cert)
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertificates(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", x509cert, err)
	}
	if pub != nil && !x509tools.SameKey(pub, cert.Leaf.PublicKey) {
		return nil, errors.New("certificate does not match key in token")
	}
	for _, path := range crossCerts {
		cross, err := LoadCertificatesFile(path)
		if err != nil {
			return nil, err
		}
		cert.Certificates = append(cert.Certificates, cross...)
	}
	return cert, nil
}

// IsPKCS12 guesses whether a key file is a PKCS#12 bundle from its name or
// contents
func IsPKCS12(name string, blob []byte) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return true
	}
	// PFX starts with a version 3 integer, which no key or certificate does
	return len(blob) > 8 && blob[0] == asn1Magic && bytes.Contains(blob[:8], []byte{0x02, 0x01, 0x03})
}

type errNoCerts struct{}

func (errNoCerts) Error() string {
	return "failed to find any certificates in PEM file"
}

var ErrNoCerts = errNoCerts{}
