package token

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/internal/httperror"
)

type countingSigner struct {
	calls  int
	errs   []error
	closed bool
}

func (c *countingSigner) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	c.calls++
	if len(c.errs) != 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return []byte("signature"), nil
}

func (c *countingSigner) Close() error {
	c.closed = true
	return nil
}

func fastRetry(s Signer, retries uint64) Signer {
	r := WithRetry(s, retries, time.Second).(*retrySigner)
	r.initialInterval = time.Millisecond
	return r
}

func TestFromCryptoSigner(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("hello"))
	s := FromCryptoSigner(key)
	sig, err := s.SignDigest(context.Background(), digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], sig))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SignDigest(ctx, digest[:], crypto.SHA256)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, Close(s))
}

func TestSignerFunc(t *testing.T) {
	var s Signer = SignerFunc(func(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
		assert.Equal(t, crypto.SHA384, hash)
		return append([]byte("sig:"), digest...), nil
	})
	sig, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA384)
	require.NoError(t, err)
	assert.Equal(t, []byte("sig:\x01"), sig)
}

func TestRetryTemporary(t *testing.T) {
	inner := &countingSigner{errs: []error{
		httperror.ResponseError{StatusCode: http.StatusServiceUnavailable},
		httperror.ResponseError{StatusCode: http.StatusBadGateway},
	}}
	s := fastRetry(inner, 3)
	sig, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	require.NoError(t, err)
	assert.Equal(t, []byte("signature"), sig)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryPermanent(t *testing.T) {
	denied := httperror.ResponseError{StatusCode: http.StatusForbidden}
	inner := &countingSigner{errs: []error{denied}}
	s := fastRetry(inner, 3)
	_, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	assert.Equal(t, denied, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryExhausted(t *testing.T) {
	unavailable := httperror.ResponseError{StatusCode: http.StatusServiceUnavailable}
	inner := &countingSigner{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	s := fastRetry(inner, 2)
	_, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	assert.Equal(t, unavailable, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRateLimit(t *testing.T) {
	inner := &countingSigner{}
	s := WithRateLimit(inner, 0.001, 1)
	_, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	require.NoError(t, err)
	// the bucket is now empty and won't refill before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.SignDigest(ctx, []byte{1}, crypto.SHA256)
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestMetrics(t *testing.T) {
	inner := &countingSigner{errs: []error{errors.New("denied")}}
	s := WithMetrics(inner, "metrics-test")
	_, err := s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	assert.Error(t, err)
	_, err = s.SignDigest(context.Background(), []byte{1}, crypto.SHA256)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricResponses.WithLabelValues("metrics-test", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricResponses.WithLabelValues("metrics-test", "200")))
}

func TestCloseForwarded(t *testing.T) {
	inner := &countingSigner{}
	s := WithMetrics(WithRateLimit(WithRetry(inner, 1, 0), 10, 1), "close-test")
	require.NoError(t, Close(s))
	assert.True(t, inner.closed)
}
