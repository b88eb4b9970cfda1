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

// Package filetoken signs with a private key read from a local file
package filetoken

import (
	"context"
	"crypto"
	"fmt"
	"os"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/token"
)

const tokenType = "file"

func init() {
	token.Openers[tokenType] = Open
}

type fileKey struct {
	token.Signer
	signer crypto.Signer
	cert   []byte
}

// Open loads the key named by kconf.KeyFile. PKCS#12 bundles are decrypted
// with a password from prompt and also supply certificates.
func Open(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, prompt passprompt.PasswordGetter) (token.Key, error) {
	if kconf.KeyFile == "" {
		return nil, fmt.Errorf("key %q needs a keyfile setting", kconf.Name())
	}
	blob, err := os.ReadFile(kconf.KeyFile)
	if err != nil {
		return nil, err
	}
	var privateKey crypto.PrivateKey
	var certBlob []byte
	if kconf.IsPkcs12 || certloader.IsPKCS12(kconf.KeyFile, blob) {
		cert, err := certloader.ParsePKCS12(blob, prompt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kconf.KeyFile, err)
		}
		privateKey = cert.PrivateKey
		for _, oneCert := range cert.Chain() {
			certBlob = append(certBlob, oneCert.Raw...)
		}
	} else {
		privateKey, err = certloader.ParsePrivateKey(blob)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kconf.KeyFile, err)
		}
	}
	signer, ok := privateKey.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported private key type %T", kconf.KeyFile, privateKey)
	}
	return &fileKey{
		Signer: token.FromCryptoSigner(signer),
		signer: signer,
		cert:   certBlob,
	}, nil
}

func (key *fileKey) Public() crypto.PublicKey {
	return key.signer.Public()
}

func (key *fileKey) Certificate() []byte {
	return key.cert
}

func (key *fileKey) Close() error {
	return nil
}
