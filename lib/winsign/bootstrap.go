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

package winsign

import (
	"context"
	"crypto"
	_ "embed"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sassoftware/winsign/lib/osslsigncode"
	"github.com/sassoftware/winsign/lib/sigerrors"
)

// DummyPEM is a throwaway self-signed certificate and RSA key used to produce
// the initial signature. It is never trusted by anything.
//
//go:embed dummy.pem
var DummyPEM []byte

// Tool is the external utility that computes file digests and embeds or
// extracts signatures
type Tool interface {
	Sign(ctx context.Context, p osslsigncode.SignParams) error
	ExtractSignature(ctx context.Context, infile, sigfile string) error
	AttachSignature(ctx context.Context, infile, sigfile, outfile string) error
}

type BootstrapParams struct {
	InFile        string
	Hash          crypto.Hash
	URL           string
	Comment       string
	CrossCertFile string
}

// Bootstrapper produces a dummy-signed copy of a file in a scratch directory
// and pulls the signature back out of it
type Bootstrapper struct {
	Tool Tool
	// Dir is a scratch directory owned by the caller
	Dir string
}

// SignDummy signs a copy of the input with the embedded identity and returns
// the path of the signed copy
func (b *Bootstrapper) SignDummy(ctx context.Context, p BootstrapParams) (string, error) {
	keyPath := filepath.Join(b.Dir, "dummy.pem")
	if err := os.WriteFile(keyPath, DummyPEM, 0600); err != nil {
		return "", err
	}
	signed := filepath.Join(b.Dir, "signed1"+filepath.Ext(p.InFile))
	zerolog.Ctx(ctx).Debug().Msg("generating dummy signature")
	err := b.Tool.Sign(ctx, osslsigncode.SignParams{
		InFile:        p.InFile,
		OutFile:       signed,
		CertFile:      keyPath,
		KeyFile:       keyPath,
		Hash:          p.Hash,
		URL:           p.URL,
		Comment:       p.Comment,
		CrossCertFile: p.CrossCertFile,
	})
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Extract returns the DER signature embedded in a signed file
func (b *Bootstrapper) Extract(ctx context.Context, signed string) ([]byte, error) {
	sigPath := filepath.Join(b.Dir, "signature.pem")
	if err := b.Tool.ExtractSignature(ctx, signed, sigPath); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, err
	}
	return pemToDER(blob)
}

// Bootstrap signs with the dummy identity and extracts the result
func (b *Bootstrapper) Bootstrap(ctx context.Context, p BootstrapParams) ([]byte, error) {
	signed, err := b.SignDummy(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.Extract(ctx, signed)
}

func pemToDER(blob []byte) ([]byte, error) {
	block, _ := pem.Decode(blob)
	if block != nil {
		return block.Bytes, nil
	}
	if len(blob) != 0 && blob[0] == 0x30 {
		// already DER
		return blob, nil
	}
	return nil, &sigerrors.MalformedSignature{Reason: fmt.Sprintf("extracted signature is neither PEM nor DER (%d bytes)", len(blob))}
}
