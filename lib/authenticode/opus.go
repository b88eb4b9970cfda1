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
	"encoding/asn1"
	"encoding/binary"
	"errors"
	"unicode/utf16"

	"github.com/sassoftware/winsign/lib/pkcs7"
)

// OpusInfo is the human-readable description attached to a signature
type OpusInfo struct {
	ProgramName string
	URL         string
}

// NewSpcSpOpusInfo builds an opus attribute value with the program name as a
// unicode SpcString and the URL as a SpcLink
func NewSpcSpOpusInfo(programName, url string) (SpcSpOpusInfo, error) {
	var info SpcSpOpusInfo
	if programName != "" {
		words := utf16.Encode([]rune(programName))
		unicode := make([]byte, 2*len(words))
		for i, w := range words {
			binary.BigEndian.PutUint16(unicode[2*i:], w)
		}
		inner, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: unicode})
		if err != nil {
			return info, err
		}
		info.ProgramName = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}
	}
	if url != "" {
		inner, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: []byte(url)})
		if err != nil {
			return info, err
		}
		info.MoreInfo = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 1, IsCompound: true, Bytes: inner}
	}
	return info, nil
}

// ParseOpusInfo reads the SpcSpOpusInfo authenticated attribute, if present
func ParseOpusInfo(attrs pkcs7.AttributeList) (OpusInfo, error) {
	var raw SpcSpOpusInfo
	var info OpusInfo
	if err := attrs.GetOne(OidSpcSpOpusInfo, &raw); err != nil {
		if _, ok := err.(pkcs7.ErrNoAttribute); ok {
			return info, nil
		}
		return info, err
	}
	var err error
	if len(raw.ProgramName.Bytes) != 0 {
		info.ProgramName, err = parseSpcString(raw.ProgramName.Bytes)
		if err != nil {
			return info, err
		}
	}
	if len(raw.MoreInfo.Bytes) != 0 {
		var link asn1.RawValue
		if _, err := asn1.Unmarshal(raw.MoreInfo.Bytes, &link); err != nil {
			return info, err
		}
		switch link.Tag {
		case 0:
			info.URL = string(link.Bytes)
		case 2:
			// file: [2] EXPLICIT SpcString
			info.URL, err = parseSpcString(link.Bytes)
			if err != nil {
				return info, err
			}
		}
	}
	return info, nil
}

func parseSpcString(der []byte) (string, error) {
	var value asn1.RawValue
	if _, err := asn1.Unmarshal(der, &value); err != nil {
		return "", err
	}
	switch value.Tag {
	case 0:
		if len(value.Bytes)%2 != 0 {
			return "", errors.New("invalid unicode SpcString")
		}
		words := make([]uint16, len(value.Bytes)/2)
		for i := range words {
			words[i] = binary.BigEndian.Uint16(value.Bytes[2*i:])
		}
		return string(utf16.Decode(words)), nil
	case 1:
		return string(value.Bytes), nil
	default:
		return "", errors.New("invalid SpcString")
	}
}
