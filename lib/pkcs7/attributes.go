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
	"fmt"
)

type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue
}

type AttributeList []Attribute

// Add a value to the list. If an attribute of the same type is already present
// the value is appended to its value set.
func (l *AttributeList) Add(oid asn1.ObjectIdentifier, obj interface{}) error {
	value, err := asn1.Marshal(obj)
	if err != nil {
		return err
	}
	for i, attr := range *l {
		if attr.Type.Equal(oid) {
			attr.Values.Bytes = append(attr.Values.Bytes, value...)
			attr.Values.FullBytes = nil
			(*l)[i] = attr
			return nil
		}
	}
	*l = append(*l, Attribute{
		Type: oid,
		Values: asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSet,
			IsCompound: true,
			Bytes:      value,
		}})
	return nil
}

// Remove all attributes of the given type
func (l *AttributeList) Remove(oid asn1.ObjectIdentifier) {
	kept := (*l)[:0]
	for _, attr := range *l {
		if !attr.Type.Equal(oid) {
			kept = append(kept, attr)
		}
	}
	*l = kept
}

// Exists returns true if an attribute of the given type is present
func (l AttributeList) Exists(oid asn1.ObjectIdentifier) bool {
	for _, attr := range l {
		if attr.Type.Equal(oid) {
			return true
		}
	}
	return false
}

// ErrNoAttribute is returned by GetOne and GetAll when the requested
// attribute is not present
type ErrNoAttribute struct {
	ID asn1.ObjectIdentifier
}

func (e ErrNoAttribute) Error() string {
	return fmt.Sprintf("attribute not found: %s", e.ID)
}

// GetOne unmarshals the single value of an attribute into dest. It is an
// error for the attribute to have more than one value.
func (l AttributeList) GetOne(oid asn1.ObjectIdentifier, dest interface{}) error {
	for _, attr := range l {
		if attr.Type.Equal(oid) {
			rest, err := asn1.Unmarshal(attr.Values.Bytes, dest)
			if err != nil {
				return err
			} else if len(rest) != 0 {
				return errors.New("attribute has more than one value")
			}
			return nil
		}
	}
	return ErrNoAttribute{oid}
}

// GetAll unmarshals every value of an attribute into dest, which must be a
// pointer to a slice
func (l AttributeList) GetAll(oid asn1.ObjectIdentifier, dest interface{}) error {
	for _, attr := range l {
		if attr.Type.Equal(oid) {
			values := attr.Values.FullBytes
			if len(values) == 0 {
				var err error
				values, err = asn1.Marshal(attr.Values)
				if err != nil {
					return err
				}
			}
			_, err := asn1.UnmarshalWithParams(values, dest, "set")
			return err
		}
	}
	return ErrNoAttribute{oid}
}

// Bytes returns the list encoded as a SET OF Attribute. This is the form that
// the signer digests, as opposed to the [0] IMPLICIT form stored in the
// SignerInfo.
func (l AttributeList) Bytes() ([]byte, error) {
	return asn1.MarshalWithParams(l, "set")
}
