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
	"encoding/asn1"
	"errors"
	"math/big"
)

type EcdsaSignature struct {
	R, S *big.Int
}

// Unpack an ECDSA signature from the raw r||s format used by PKCS#11 and JOSE
func UnpackEcdsaSignature(packed []byte) (sig EcdsaSignature, err error) {
	byteLen := len(packed) / 2
	if len(packed) == 0 || len(packed) != byteLen*2 {
		err = errors.New("ecdsa signature is incorrect size")
		return
	}
	sig.R = new(big.Int).SetBytes(packed[:byteLen])
	sig.S = new(big.Int).SetBytes(packed[byteLen:])
	return
}

// Unmarshal an ECDSA signature from a DER structure
func UnmarshalEcdsaSignature(der []byte) (sig EcdsaSignature, err error) {
	rest, err := asn1.Unmarshal(der, &sig)
	if err == nil && len(rest) != 0 {
		err = errors.New("trailing garbage after ECDSA signature")
	}
	return
}

// Marshal an ECDSA signature as a DER structure
func (sig EcdsaSignature) Marshal() []byte {
	ret, err := asn1.Marshal(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// Pack an ECDSA signature into the raw r||s format
func (sig EcdsaSignature) Pack() []byte {
	rBytes := sig.R.Bytes()
	sBytes := sig.S.Bytes()
	byteLen := len(rBytes)
	if len(sBytes) > byteLen {
		byteLen = len(sBytes)
	}
	packed := make([]byte, byteLen*2)
	copy(packed[byteLen-len(rBytes):], rBytes)
	copy(packed[2*byteLen-len(sBytes):], sBytes)
	return packed
}
