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
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

type rdnAttr struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type rdnNameSet []rdnAttr

type NameStyle int

const (
	// RFC 4514 style: most specific RDN first, comma separated
	NameStyleLdap NameStyle = iota
	// openssl -subject style: least specific RDN first, slash separated
	NameStyleOpenSsl
)

var attrNames = []struct {
	Type asn1.ObjectIdentifier
	Name string
}{
	{asn1.ObjectIdentifier{2, 5, 4, 3}, "CN"},
	{asn1.ObjectIdentifier{2, 5, 4, 4}, "surname"},
	{asn1.ObjectIdentifier{2, 5, 4, 5}, "serialNumber"},
	{asn1.ObjectIdentifier{2, 5, 4, 6}, "C"},
	{asn1.ObjectIdentifier{2, 5, 4, 7}, "L"},
	{asn1.ObjectIdentifier{2, 5, 4, 8}, "ST"},
	{asn1.ObjectIdentifier{2, 5, 4, 9}, "street"},
	{asn1.ObjectIdentifier{2, 5, 4, 10}, "O"},
	{asn1.ObjectIdentifier{2, 5, 4, 11}, "OU"},
	{asn1.ObjectIdentifier{2, 5, 4, 12}, "title"},
	{asn1.ObjectIdentifier{2, 5, 4, 13}, "description"},
	{asn1.ObjectIdentifier{2, 5, 4, 17}, "postalCode"},
	{asn1.ObjectIdentifier{2, 5, 4, 42}, "givenName"},
	{asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}, "DC"},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}, "emailAddress"},
}

const InvalidName = "<invalid>"

// FormatPkixName renders a DER-encoded X.501 Name for display
func FormatPkixName(der []byte, style NameStyle) string {
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(der, &seq); err != nil {
		return InvalidName
	}
	seqbytes := seq.Bytes
	var rdns [][]string
	for len(seqbytes) > 0 {
		var rdnSet rdnNameSet
		var err error
		seqbytes, err = asn1.UnmarshalWithParams(seqbytes, &rdnSet, "set")
		if err != nil {
			return InvalidName
		}
		var elems []string
		for _, attr := range rdnSet {
			value, ok := attValue(attr.Value)
			if !ok {
				return InvalidName
			}
			elems = append(elems, fmt.Sprintf("%s=%s", attName(attr.Type), escapeValue(value, style)))
		}
		rdns = append(rdns, elems)
	}
	switch style {
	case NameStyleOpenSsl:
		var formatted []string
		for _, elems := range rdns {
			formatted = append(formatted, elems...)
		}
		if len(formatted) == 0 {
			return ""
		}
		return "/" + strings.Join(formatted, "/")
	case NameStyleLdap:
		formatted := make([]string, 0, len(rdns))
		for i := len(rdns) - 1; i >= 0; i-- {
			formatted = append(formatted, strings.Join(rdns[i], "+"))
		}
		return strings.Join(formatted, ", ")
	default:
		panic("invalid style argument")
	}
}

func attName(t asn1.ObjectIdentifier) string {
	for _, name := range attrNames {
		if name.Type.Equal(t) {
			return name.Name
		}
	}
	return t.String()
}

func attValue(raw asn1.RawValue) (string, bool) {
	switch raw.Tag {
	case asn1.TagUTF8String, asn1.TagIA5String, asn1.TagPrintableString:
		var ret interface{}
		if _, err := asn1.Unmarshal(raw.FullBytes, &ret); err != nil {
			return "", false
		}
		s, ok := ret.(string)
		return s, ok
	case asn1.TagT61String:
		// close enough to latin-1 for display purposes
		runes := make([]rune, len(raw.Bytes))
		for i, b := range raw.Bytes {
			runes[i] = rune(b)
		}
		return string(runes), true
	case asn1.TagBMPString:
		words := make([]uint16, len(raw.Bytes)/2)
		if err := binary.Read(bytes.NewReader(raw.Bytes), binary.BigEndian, words); err != nil {
			return "", false
		}
		return string(utf16.Decode(words)), true
	default:
		return "", false
	}
}

func escapeValue(value string, style NameStyle) string {
	switch style {
	case NameStyleOpenSsl:
		return strings.ReplaceAll(value, "/", "\\/")
	case NameStyleLdap:
		var b strings.Builder
		for i, r := range value {
			switch {
			case strings.ContainsRune(",+\"\\<>;", r),
				i == 0 && (r == '#' || r == ' '),
				i == len(value)-1 && r == ' ':
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		return b.String()
	}
	return value
}

func FormatSubject(cert *x509.Certificate) string {
	return FormatPkixName(cert.RawSubject, NameStyleLdap)
}

func FormatIssuer(cert *x509.Certificate) string {
	return FormatPkixName(cert.RawIssuer, NameStyleLdap)
}
