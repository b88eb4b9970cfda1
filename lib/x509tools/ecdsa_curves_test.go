package x509tools

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveByDer(t *testing.T) {
	der, err := asn1.Marshal(asn1.ObjectIdentifier{1, 3, 132, 0, 34})
	require.NoError(t, err)
	def, err := CurveByDer(der)
	require.NoError(t, err)
	assert.Equal(t, uint(384), def.Bits)
	assert.Equal(t, elliptic.P384(), def.Curve)

	der, err = asn1.Marshal(asn1.ObjectIdentifier{1, 2, 3})
	require.NoError(t, err)
	_, err = CurveByDer(der)
	assert.ErrorContains(t, err, "256, 384, 521")
}

func TestDerToPoint(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	//nolint:staticcheck
	raw := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)
	der, err := asn1.Marshal(raw)
	require.NoError(t, err)
	x, y := DerToPoint(elliptic.P256(), der)
	require.NotNil(t, x)
	assert.Equal(t, 0, x.Cmp(priv.X))
	assert.Equal(t, 0, y.Cmp(priv.Y))

	x, _ = DerToPoint(elliptic.P256(), []byte{0x05, 0x00})
	assert.Nil(t, x)
	x, _ = DerToPoint(elliptic.P256(), nil)
	assert.Nil(t, x)
}
