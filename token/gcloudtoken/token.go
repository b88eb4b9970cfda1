package gcloudtoken

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/internal/closeonce"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/token"
)

const tokenType = "gcloud"

type gcloudKey struct {
	kconf *config.KeyConfig
	cli   *kms.KeyManagementClient
	pub   crypto.PublicKey
	hash  crypto.Hash

	closed closeonce.Closed
}

func init() {
	token.Openers[tokenType] = open
}

func open(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, pinProvider passprompt.PasswordGetter) (token.Key, error) {
	if kconf.ID == "" {
		return nil, fmt.Errorf("key %q must have \"id\" set to the fully-qualified resource name of a Cloud KMS key version", kconf.Name())
	}
	var opts []option.ClientOption
	if tconf.Pin != nil {
		opts = append(opts, option.WithCredentialsFile(*tconf.Pin))
	}
	cli, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := cli.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: kconf.ID})
	if err != nil {
		cli.Close()
		return nil, err
	}
	hashFunc, pub, err := parsePublicKey(resp)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("key %q: %w", kconf.Name(), err)
	}
	return &gcloudKey{
		kconf: kconf,
		cli:   cli,
		pub:   pub,
		hash:  hashFunc,
	}, nil
}

func (k *gcloudKey) Public() crypto.PublicKey {
	return k.pub
}

func (k *gcloudKey) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	if hash != k.hash {
		return nil, token.KeyUsageError{
			Key: k.kconf.Name(),
			Err: fmt.Errorf("tried to use digest %s but key requires digest %s", hash, k.hash),
		}
	}
	req, err := signRequest(k.kconf.ID, hash, digest)
	if err != nil {
		return nil, token.KeyUsageError{Key: k.kconf.Name(), Err: err}
	}
	resp, err := k.cli.AsymmetricSign(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return resp.Signature, nil
}

func (k *gcloudKey) Certificate() []byte {
	return nil
}

func (k *gcloudKey) Close() error {
	return k.closed.Close(k.cli.Close)
}

type rpcError struct {
	err error
}

func (e rpcError) Error() string { return e.err.Error() }
func (e rpcError) Unwrap() error { return e.err }
func (e rpcError) Temporary() bool { return true }

func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return rpcError{err}
	}
	return err
}

func signRequest(name string, hash crypto.Hash, digest []byte) (*kmspb.AsymmetricSignRequest, error) {
	req := &kmspb.AsymmetricSignRequest{
		Name:   name,
		Digest: &kmspb.Digest{},
	}
	switch hash {
	case crypto.SHA256:
		req.Digest.Digest = &kmspb.Digest_Sha256{Sha256: digest}
	case crypto.SHA384:
		req.Digest.Digest = &kmspb.Digest_Sha384{Sha384: digest}
	case crypto.SHA512:
		req.Digest.Digest = &kmspb.Digest_Sha512{Sha512: digest}
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %s", hash)
	}
	return req, nil
}

func parsePublicKey(resp *kmspb.PublicKey) (crypto.Hash, crypto.PublicKey, error) {
	hashFunc := keyAlgorithmHash(resp.Algorithm)
	if hashFunc == 0 {
		// Authenticode only carries PKCS#1 v1.5 and ECDSA signatures
		return 0, nil, fmt.Errorf("unsupported key algorithm %q", resp.Algorithm.String())
	}
	block, _ := pem.Decode([]byte(resp.Pem))
	if block == nil {
		return 0, nil, errors.New("expected PEM in public key response")
	} else if block.Type != "PUBLIC KEY" {
		return 0, nil, fmt.Errorf("expected PUBLIC KEY in response but got %q", block.Type)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return 0, nil, err
	}
	return hashFunc, pub, nil
}

func keyAlgorithmHash(alg kmspb.CryptoKeyVersion_CryptoKeyVersionAlgorithm) crypto.Hash {
	switch alg {
	case kmspb.CryptoKeyVersion_RSA_SIGN_PKCS1_2048_SHA256,
		kmspb.CryptoKeyVersion_RSA_SIGN_PKCS1_3072_SHA256,
		kmspb.CryptoKeyVersion_RSA_SIGN_PKCS1_4096_SHA256,
		kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256:
		return crypto.SHA256
	case kmspb.CryptoKeyVersion_RSA_SIGN_PKCS1_4096_SHA512:
		return crypto.SHA512
	case kmspb.CryptoKeyVersion_EC_SIGN_P384_SHA384:
		return crypto.SHA384
	}
	return 0
}
