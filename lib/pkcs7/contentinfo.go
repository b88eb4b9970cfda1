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
	"encoding/asn1"
	"errors"
)

// NewContentInfo wraps data in a ContentInfo. If data is nil the content is
// omitted, as for a detached signature.
func NewContentInfo(contentType asn1.ObjectIdentifier, data interface{}) (ci ContentInfo, err error) {
	if data == nil {
		return ContentInfo{ContentType: contentType}, nil
	}
	encoded, err := asn1.Marshal(data)
	if err != nil {
		return ContentInfo{}, err
	}
	return ContentInfo{
		ContentType: contentType,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      encoded,
		},
	}, nil
}

// Unmarshal the inner content into dest
func (ci ContentInfo) Unmarshal(dest interface{}) error {
	if len(ci.Content.Bytes) == 0 {
		return errors.New("pkcs7: missing content")
	}
	rest, err := asn1.Unmarshal(ci.Content.Bytes, dest)
	if err != nil {
		return err
	} else if len(rest) != 0 {
		return errors.New("pkcs7: trailing garbage after content")
	}
	return nil
}

// Bytes returns the value octets of the inner content, without its tag and
// length. For id-data this is the wrapped octet string. For structured content
// like SpcIndirectDataContent it is the body of the SEQUENCE, which is what the
// messageDigest attribute is computed over.
func (ci ContentInfo) Bytes() ([]byte, error) {
	if len(ci.Content.Bytes) == 0 {
		return nil, nil
	}
	var value asn1.RawValue
	if err := ci.Unmarshal(&value); err != nil {
		return nil, err
	}
	return value.Bytes, nil
}
