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

package x509tools

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
)

type publicKeyer interface {
	Public() crypto.PublicKey
}

type equaler interface {
	Equal(crypto.PublicKey) bool
}

// Return true if the public keys (or the public halves of private keys) are
// the same key
func SameKey(pub1, pub2 interface{}) bool {
	if priv, ok := pub1.(publicKeyer); ok {
		pub1 = priv.Public()
	}
	if priv, ok := pub2.(publicKeyer); ok {
		pub2 = priv.Public()
	}
	eq, ok := pub1.(equaler)
	if !ok {
		return false
	}
	return eq.Equal(pub2)
}

// Verify a signature over a digest using a RSA or ECDSA public key
func Verify(pub crypto.PublicKey, hash crypto.Hash, digest, sig []byte) error {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, hash, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return errors.New("ECDSA verification failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
}
