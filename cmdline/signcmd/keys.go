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

package signcmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/sassoftware/winsign/cmdline/shared"
	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/token"
	"github.com/sassoftware/winsign/token/open"
)

const adhocKey = "cmdline"

// openKey is replaced in tests
var openKey = func(ctx context.Context, kconf *config.KeyConfig) (token.Signer, *certloader.Certificate, error) {
	return open.FromConfig(ctx, kconf.TokenConfig(), kconf, shared.Prompt())
}

// resolveKey works out which key to sign with. A named key comes from the
// configuration file, --key is a local key file, and otherwise the Autograph
// flags or environment must be complete. --certs and --cross-cert apply to
// all of them.
func resolveKey() (*config.KeyConfig, error) {
	var kconf *config.KeyConfig
	if argKeyName != "" {
		named, err := shared.CurrentConfig.GetKey(argKeyName)
		if err != nil {
			return nil, err
		}
		copied := *named
		copied.CrossCertificates = append([]string(nil), named.CrossCertificates...)
		kconf = &copied
	} else {
		var tconf *config.TokenConfig
		if argKey != "" {
			tconf = &config.TokenConfig{Type: "file"}
			kconf = &config.KeyConfig{KeyFile: argKey}
		} else {
			tconf = &config.TokenConfig{
				Type:    "autograph",
				URL:     flagOrEnv(argAutographURL, "AUTOGRAPH_URL"),
				User:    flagOrEnv(argAutographUser, "AUTOGRAPH_USER"),
				Secret:  flagOrEnv(argAutographSecret, "AUTOGRAPH_SECRET"),
				Retries: 3,
			}
			if tconf.URL == "" || tconf.User == "" || tconf.Secret == "" {
				return nil, errors.New("--key, --key-name, or all of --autograph-url, --autograph-user, and --autograph-secret must be specified")
			}
			kconf = &config.KeyConfig{ID: flagOrEnv(argAutographKeyID, "AUTOGRAPH_KEYID")}
		}
		kconf.Token = tconf.Type
		cfg := &config.Config{
			Tokens: map[string]*config.TokenConfig{tconf.Type: tconf},
			Keys:   map[string]*config.KeyConfig{adhocKey: kconf},
		}
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}
	}
	if argCerts != "" {
		kconf.X509Certificate = argCerts
	}
	if argCrossCert != "" {
		kconf.CrossCertificates = append(kconf.CrossCertificates, argCrossCert)
	}
	return kconf, nil
}

func flagOrEnv(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}

// crossCertFile returns a single file holding every cross-certificate, for
// the signing tool's -ac option
func crossCertFile(paths []string, dir string) (string, error) {
	switch len(paths) {
	case 0:
		return "", nil
	case 1:
		return paths[0], nil
	}
	var combined []byte
	for _, path := range paths {
		blob, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		combined = append(combined, blob...)
		if len(blob) > 0 && blob[len(blob)-1] != '\n' {
			combined = append(combined, '\n')
		}
	}
	out := filepath.Join(dir, "cross.pem")
	return out, os.WriteFile(out, combined, 0600)
}
