//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package p11token

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/miekg/pkcs11"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/sigerrors"
)

type Key struct {
	token     *Token
	keyConf   *config.KeyConfig
	keyType   uint
	pub       pkcs11.ObjectHandle
	priv      pkcs11.ObjectHandle
	pubParsed crypto.PublicKey
	cert      []byte
}

// GetKey finds the key pair described by keyConf. Closing the key closes the
// token session.
func (token *Token) GetKey(keyConf *config.KeyConfig) (*Key, error) {
	token.mutex.Lock()
	defer token.mutex.Unlock()
	var err error
	key := &Key{
		token:   token,
		keyConf: keyConf,
	}
	key.priv, err = token.findKey(keyConf, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return nil, err
	}
	key.pub, err = token.findKey(keyConf, pkcs11.CKO_PUBLIC_KEY)
	if err != nil {
		return nil, err
	}
	keyTypeBlob := token.getAttribute(key.priv, pkcs11.CKA_KEY_TYPE)
	if len(keyTypeBlob) == 0 {
		return nil, errors.New("private key: CKA_KEY_TYPE is missing")
	}
	key.keyType, err = getUlong(keyTypeBlob)
	if err != nil {
		return nil, fmt.Errorf("private key: CKA_KEY_TYPE: %w", err)
	}
	switch key.keyType {
	case CKK_RSA:
		key.pubParsed, err = key.toRsaKey()
	case CKK_ECDSA:
		key.pubParsed, err = key.toEcdsaKey()
	default:
		return nil, errors.New("unsupported key type")
	}
	if err != nil {
		return nil, err
	}
	key.cert, err = key.findCertificate()
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (token *Token) findKey(keyConf *config.KeyConfig, class uint) (pkcs11.ObjectHandle, error) {
	attrs := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
	}
	if keyConf.Label != "" {
		attrs = append(attrs, pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyConf.Label))
	}
	if keyConf.ID != "" {
		keyID, err := parseKeyID(keyConf.ID)
		if err != nil {
			return 0, err
		}
		attrs = append(attrs, pkcs11.NewAttribute(pkcs11.CKA_ID, keyID))
	}
	objects, err := token.findObject(attrs)
	if err != nil {
		return 0, err
	} else if len(objects) > 1 {
		return 0, errors.New("multiple token objects with the specified attributes")
	} else if len(objects) == 0 {
		return 0, sigerrors.KeyNotFoundError{}
	}
	return objects[0], nil
}

// Certificate returns the certificate stored on the token alongside the key,
// if there is one
func (key *Key) Certificate() []byte {
	return key.cert
}

func (key *Key) Public() crypto.PublicKey {
	return key.pubParsed
}

func (key *Key) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key.token.mutex.Lock()
	defer key.token.mutex.Unlock()
	switch key.keyType {
	case CKK_RSA:
		return key.signRSA(digest, hash)
	case CKK_ECDSA:
		return key.signECDSA(digest)
	default:
		return nil, errors.New("unsupported key type")
	}
}

func (key *Key) Close() error {
	return key.token.Close()
}
