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

// Package token defines the signing capability used to produce the final
// signature, along with adapters for local keys and optional retry, rate
// limiting, and metrics wrappers. Backends live in subpackages.
package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"io"
)

// Signer produces a signature over a precomputed digest. It is the only
// thing the re-signing engine needs from a key, which may be local or held by
// a remote service.
//
// RSA signers return a PKCS#1 v1.5 signature over the DigestInfo for hash.
// ECDSA signers return an ASN.1 DER signature.
type Signer interface {
	SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error)
}

// SignerFunc adapts an ordinary function to a Signer
type SignerFunc func(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error)

func (f SignerFunc) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	return f(ctx, digest, hash)
}

type cryptoSigner struct {
	signer crypto.Signer
}

// FromCryptoSigner adapts a crypto.Signer such as a *rsa.PrivateKey
func FromCryptoSigner(s crypto.Signer) Signer {
	return cryptoSigner{signer: s}
}

func (s cryptoSigner) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.signer.Sign(rand.Reader, digest, hash)
}

func (s cryptoSigner) Public() crypto.PublicKey {
	return s.signer.Public()
}

// Close releases whatever s holds, if it holds anything
func Close(s Signer) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// KeyUsageError is returned when a key can't be used in the requested way,
// for example with an unsupported digest
type KeyUsageError struct {
	Key string
	Err error
}

func (e KeyUsageError) Error() string {
	return "key " + e.Key + ": " + e.Err.Error()
}

func (e KeyUsageError) Unwrap() error { return e.Err }
