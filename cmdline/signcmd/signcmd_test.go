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
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/github/fakeca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/cmdline/shared"
	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/lib/osslsigncode"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/winsign"
	"github.com/sassoftware/winsign/token"
)

// failingTool refuses to sign anything
type failingTool struct {
	calls atomic.Int32
}

func (f *failingTool) Sign(ctx context.Context, p osslsigncode.SignParams) error {
	f.calls.Add(1)
	return &sigerrors.ToolError{Op: osslsigncode.OpSign, Err: errors.New("exit status 1")}
}

func (f *failingTool) ExtractSignature(ctx context.Context, infile, sigfile string) error {
	return errors.New("not reached")
}

func (f *failingTool) AttachSignature(ctx context.Context, infile, sigfile, outfile string) error {
	return errors.New("not reached")
}

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		argCerts, argKey, argKeyName, argCrossCert = "", "", "", ""
		argAutographURL, argAutographUser, argAutographSecret, argAutographKeyID = "", "", "", ""
		argSigningTime = ""
		argFailFast = false
		shared.ArgDigest = ""
	})
	shared.CurrentConfig = config.New()
}

func writeCert(t *testing.T, dir, name string, id *fakeca.Identity) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.Certificate.Raw}), 0600))
	return path
}

func TestResolveKeyFile(t *testing.T) {
	resetFlags(t)
	argKey = "/keys/release.pem"
	argCerts = "/keys/release.crt"
	argCrossCert = "/keys/cross.crt"
	kconf, err := resolveKey()
	require.NoError(t, err)
	assert.Equal(t, "file", kconf.TokenConfig().Type)
	assert.Equal(t, "/keys/release.pem", kconf.KeyFile)
	assert.Equal(t, "/keys/release.crt", kconf.X509Certificate)
	assert.Equal(t, []string{"/keys/cross.crt"}, kconf.CrossCertificates)
	assert.Equal(t, adhocKey, kconf.Name())
}

func TestResolveKeyAutograph(t *testing.T) {
	resetFlags(t)
	t.Setenv("AUTOGRAPH_URL", "https://autograph.example")
	t.Setenv("AUTOGRAPH_USER", "")
	t.Setenv("AUTOGRAPH_SECRET", "hunter2")
	t.Setenv("AUTOGRAPH_KEYID", "authenticode")
	_, err := resolveKey()
	assert.ErrorContains(t, err, "must be specified")

	argAutographUser = "alice"
	kconf, err := resolveKey()
	require.NoError(t, err)
	tconf := kconf.TokenConfig()
	assert.Equal(t, "autograph", tconf.Type)
	assert.Equal(t, "https://autograph.example", tconf.URL)
	assert.Equal(t, "alice", tconf.User)
	assert.Equal(t, "hunter2", tconf.Secret)
	assert.Equal(t, "authenticode", kconf.ID)
}

func TestResolveKeyNamed(t *testing.T) {
	resetFlags(t)
	cfg := &config.Config{
		Tokens: map[string]*config.TokenConfig{"hsm": {Type: "pkcs11", Provider: "/usr/lib/softhsm/libsofthsm2.so"}},
		Keys:   map[string]*config.KeyConfig{"release": {Token: "hsm", Label: "release", CrossCertificates: []string{"a.pem"}}},
	}
	require.NoError(t, cfg.Normalize())
	shared.CurrentConfig = cfg
	argKeyName = "release"
	argCrossCert = "b.pem"
	kconf, err := resolveKey()
	require.NoError(t, err)
	assert.Equal(t, "hsm", kconf.TokenConfig().Name())
	assert.Equal(t, []string{"a.pem", "b.pem"}, kconf.CrossCertificates)
	// the configuration itself is untouched
	assert.Equal(t, []string{"a.pem"}, cfg.Keys["release"].CrossCertificates)
}

func TestCrossCertFile(t *testing.T) {
	dir := t.TempDir()
	a := writeCert(t, dir, "a.pem", fakeca.New())
	b := writeCert(t, dir, "b.pem", fakeca.New())

	path, err := crossCertFile(nil, dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = crossCertFile([]string{a}, dir)
	require.NoError(t, err)
	assert.Equal(t, a, path)

	path, err = crossCertFile([]string{a, b}, dir)
	require.NoError(t, err)
	certs, err := certloader.LoadCertificatesFile(path)
	require.NoError(t, err)
	assert.Len(t, certs, 2)
}

func TestSpoolStdin(t *testing.T) {
	path, err := spoolStdin(bytes.NewReader([]byte("MZ unsigned")), t.TempDir())
	require.NoError(t, err)
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MZ unsigned", string(blob))
}

func TestSignFailure(t *testing.T) {
	resetFlags(t)
	leaf := fakeca.New(fakeca.IsCA).Issue()
	tool := new(failingTool)
	oldTool, oldOpen := newTool, openKey
	t.Cleanup(func() { newTool, openKey = oldTool, oldOpen })
	newTool = func() (winsign.Tool, error) { return tool, nil }
	openKey = func(ctx context.Context, kconf *config.KeyConfig) (token.Signer, *certloader.Certificate, error) {
		return token.FromCryptoSigner(leaf.PrivateKey), &certloader.Certificate{
			Leaf:         leaf.Certificate,
			Certificates: []*x509.Certificate{leaf.Certificate},
		}, nil
	}
	argKey = "unused"

	path := filepath.Join(t.TempDir(), "app.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZapp"), 0644))
	shared.RootCmd.SetArgs([]string{"sign", "-q", path})
	err := shared.RootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, shared.ErrFailed)
	// the tool output was logged by the pipeline and is not repeated
	var toolErr *sigerrors.ToolError
	assert.False(t, errors.As(err, &toolErr))
	assert.Equal(t, int32(1), tool.calls.Load())
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MZapp", string(blob))
}

func TestBatchFailures(t *testing.T) {
	resetFlags(t)
	leaf := fakeca.New(fakeca.IsCA).Issue()
	tool := new(failingTool)
	oldTool, oldOpen := newTool, openKey
	t.Cleanup(func() { newTool, openKey = oldTool, oldOpen })
	newTool = func() (winsign.Tool, error) { return tool, nil }
	openKey = func(ctx context.Context, kconf *config.KeyConfig) (token.Signer, *certloader.Certificate, error) {
		return token.FromCryptoSigner(leaf.PrivateKey), &certloader.Certificate{
			Leaf:         leaf.Certificate,
			Certificates: []*x509.Certificate{leaf.Certificate},
		}, nil
	}
	argKey = "unused"

	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.exe", "b.exe", "c.exe"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("MZ"+name), 0644))
		files = append(files, path)
	}
	shared.RootCmd.SetArgs(append([]string{"batch", "-q", "-j", "2"}, files...))
	err := shared.RootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, shared.ErrFailed)
	assert.Equal(t, int32(3), tool.calls.Load())
	for _, path := range files {
		blob, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "MZ"+filepath.Base(path), string(blob))
	}

	shared.RootCmd.SetArgs([]string{"batch", "-"})
	err = shared.RootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "stdin")
}
