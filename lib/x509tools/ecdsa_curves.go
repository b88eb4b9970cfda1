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
	"crypto/elliptic"
	"encoding/asn1"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type CurveDefinition struct {
	Bits  uint
	Curve elliptic.Curve
	Oid   asn1.ObjectIdentifier
}

// curves that can appear in a code signing certificate
var DefinedCurves = []CurveDefinition{
	{256, elliptic.P256(), asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}},
	{384, elliptic.P384(), asn1.ObjectIdentifier{1, 3, 132, 0, 34}},
	{521, elliptic.P521(), asn1.ObjectIdentifier{1, 3, 132, 0, 35}},
}

func SupportedCurves() string {
	curves := make([]string, len(DefinedCurves))
	for i, def := range DefinedCurves {
		curves[i] = strconv.FormatUint(uint64(def.Bits), 10)
	}
	return strings.Join(curves, ", ")
}

func CurveByOid(oid asn1.ObjectIdentifier) (*CurveDefinition, error) {
	for _, def := range DefinedCurves {
		if oid.Equal(def.Oid) {
			def := def
			return &def, nil
		}
	}
	return nil, fmt.Errorf("unsupported ECDSA curve with OID %s, supported curves: %s", oid, SupportedCurves())
}

// CurveByDer looks up a curve from DER-encoded EC parameters, as stored in a
// PKCS#11 CKA_EC_PARAMS attribute
func CurveByDer(der []byte) (*CurveDefinition, error) {
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(der, &oid); err != nil {
		return nil, err
	}
	return CurveByOid(oid)
}

// DerToPoint decodes an uncompressed curve point wrapped in an OCTET STRING
// or BIT STRING. It returns nil if the point is not valid.
func DerToPoint(curve elliptic.Curve, der []byte) (*big.Int, *big.Int) {
	if len(der) == 0 {
		return nil, nil
	}
	var blob []byte
	switch der[0] {
	case asn1.TagOctetString:
		if _, err := asn1.Unmarshal(der, &blob); err != nil {
			return nil, nil
		}
	case asn1.TagBitString:
		var bits asn1.BitString
		if _, err := asn1.Unmarshal(der, &bits); err != nil {
			return nil, nil
		}
		blob = bits.Bytes
	default:
		return nil, nil
	}
	return elliptic.Unmarshal(curve, blob)
}
