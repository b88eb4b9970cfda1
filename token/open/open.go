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

// Package open turns key configuration into a ready-to-use signer and the
// certificate chain that goes with it
package open

import (
	"context"
	"errors"
	"fmt"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/lib/x509tools"
	"github.com/sassoftware/winsign/token"

	// token backends
	_ "github.com/sassoftware/winsign/token/autograph"
	_ "github.com/sassoftware/winsign/token/awstoken"
	_ "github.com/sassoftware/winsign/token/azuretoken"
	_ "github.com/sassoftware/winsign/token/filetoken"
	_ "github.com/sassoftware/winsign/token/gcloudtoken"
	_ "github.com/sassoftware/winsign/token/p11token"
)

// Key opens a key by name from the configuration file
func Key(ctx context.Context, cfg *config.Config, keyName string, prompt passprompt.PasswordGetter) (token.Signer, *certloader.Certificate, error) {
	kconf, err := cfg.GetKey(keyName)
	if err != nil {
		return nil, nil, err
	}
	return FromConfig(ctx, kconf.TokenConfig(), kconf, prompt)
}

// FromConfig opens the key described by kconf in token tconf. The signer is
// wrapped with metrics and, if the token asks for them, retries and a rate
// limit. Closing it releases the key.
func FromConfig(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, prompt passprompt.PasswordGetter) (token.Signer, *certloader.Certificate, error) {
	if tconf == nil {
		return nil, nil, errors.New("key has no token")
	}
	opener := token.Openers[tconf.Type]
	if opener == nil {
		return nil, nil, fmt.Errorf("unknown token type %q", tconf.Type)
	}
	key, err := opener(ctx, tconf, kconf, prompt)
	if err != nil {
		return nil, nil, err
	}
	cert, err := keyCertificates(key, kconf)
	if err != nil {
		key.Close()
		return nil, nil, err
	}
	name := tconf.Name()
	if name == "" {
		name = tconf.Type
	}
	var signer token.Signer = token.WithMetrics(key, name)
	if tconf.Retries > 0 {
		signer = token.WithRetry(signer, uint64(tconf.Retries), tconf.GetTimeout())
	}
	if tconf.RateLimit > 0 {
		signer = token.WithRateLimit(signer, tconf.RateLimit, tconf.RateBurst)
	}
	return signer, cert, nil
}

func keyCertificates(key token.Key, kconf *config.KeyConfig) (*certloader.Certificate, error) {
	if kconf.X509Certificate != "" {
		return certloader.LoadTokenCertificates(key.Public(), kconf.X509Certificate, kconf.CrossCertificates)
	}
	blob := key.Certificate()
	if len(blob) == 0 {
		return nil, fmt.Errorf("key %q: no certificate configured and none stored with the key", kconf.Name())
	}
	cert, err := certloader.ParseCertificates(blob)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", kconf.Name(), err)
	}
	if pub := key.Public(); pub != nil && !x509tools.SameKey(pub, cert.Leaf.PublicKey) {
		return nil, fmt.Errorf("key %q: certificate does not match key", kconf.Name())
	}
	for _, path := range kconf.CrossCertificates {
		cross, err := certloader.LoadCertificatesFile(path)
		if err != nil {
			return nil, err
		}
		cert.Certificates = append(cert.Certificates, cross...)
	}
	return cert, nil
}
