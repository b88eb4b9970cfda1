package filetoken

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/token"
)

func TestOpen(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0600))

	cfg := &config.Config{
		Tokens: map[string]*config.TokenConfig{"local": {Type: "file"}},
		Keys:   map[string]*config.KeyConfig{"k": {Token: "local", KeyFile: path}},
	}
	require.NoError(t, cfg.Normalize())
	kconf, err := cfg.GetKey("k")
	require.NoError(t, err)

	opener := token.Openers["file"]
	require.NotNil(t, opener)
	k, err := opener(context.Background(), kconf.TokenConfig(), kconf, nil)
	require.NoError(t, err)
	defer k.Close()
	assert.True(t, key.PublicKey.Equal(k.Public()))
	assert.Nil(t, k.Certificate())

	digest := sha256.Sum256([]byte("data"))
	sig, err := k.SignDigest(context.Background(), digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], sig))
}

func TestOpenMissingKeyFile(t *testing.T) {
	kconf := &config.KeyConfig{Token: "local"}
	_, err := Open(context.Background(), &config.TokenConfig{Type: "file"}, kconf, nil)
	assert.ErrorContains(t, err, "keyfile")
}
