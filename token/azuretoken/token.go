package azuretoken

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/lib/x509tools"
	"github.com/sassoftware/winsign/token"
)

const tokenType = "azure"

type kvKey struct {
	kconf    *config.KeyConfig
	cli      *azkeys.Client
	pub      crypto.PublicKey
	kname    string
	kversion string
}

func init() {
	token.Openers[tokenType] = open
}

func open(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, pinProvider passprompt.PasswordGetter) (token.Key, error) {
	baseURL, kname, kversion, err := parseKeyURL(kconf.ID)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", kconf.Name(), err)
	}
	cred, err := newCredential(tconf)
	if err != nil {
		return nil, err
	}
	cli, err := azkeys.NewClient(baseURL, cred, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cli.GetKey(ctx, kname, kversion, nil)
	if err != nil {
		return nil, err
	}
	pub, err := publicKey(resp.Key)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", kconf.Name(), err)
	}
	if kversion == "" && resp.Key.KID != nil {
		// pin the version so every signature in this run uses the same key
		kversion = resp.Key.KID.Version()
	}
	return &kvKey{
		kconf:    kconf,
		cli:      cli,
		pub:      pub,
		kname:    kname,
		kversion: kversion,
	}, nil
}

func (k *kvKey) Public() crypto.PublicKey {
	return k.pub
}

func (k *kvKey) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	alg, err := sigAlgorithm(k.pub, hash)
	if err != nil {
		return nil, token.KeyUsageError{Key: k.kconf.Name(), Err: err}
	}
	resp, err := k.cli.Sign(ctx, k.kname, k.kversion, azkeys.SignParameters{
		Algorithm: &alg,
		Value:     digest,
	}, nil)
	if err != nil {
		return nil, classify(err)
	}
	sig := resp.Result
	if _, ok := k.pub.(*ecdsa.PublicKey); ok {
		// repack as ASN.1
		unpacked, err := x509tools.UnpackEcdsaSignature(sig)
		if err != nil {
			return nil, err
		}
		sig = unpacked.Marshal()
	}
	return sig, nil
}

func (k *kvKey) Certificate() []byte {
	return nil
}

func (k *kvKey) Close() error {
	return nil
}

type vaultError struct {
	*azcore.ResponseError
}

func (e vaultError) Unwrap() error { return e.ResponseError }
func (e vaultError) Temporary() bool { return true }

// throttling and server errors from the vault are retryable
func classify(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= 500 {
			return vaultError{respErr}
		}
	}
	return err
}

var errKeyID = errors.New("id: expected https://{vaultname}.vault.azure.net/keys/{keyname}[/{keyversion}]")

func parseKeyURL(keyURL string) (baseURL, name, version string, err error) {
	if keyURL == "" {
		return "", "", "", errKeyID
	}
	u, err := url.Parse(keyURL)
	if err != nil {
		return "", "", "", fmt.Errorf("id: %w", err)
	} else if u.Scheme == "" || u.Host == "" {
		return "", "", "", errKeyID
	}
	words := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	switch {
	case len(words) == 3 && words[1] == "keys":
		name = words[2]
	case len(words) == 4 && words[1] == "keys":
		name, version = words[2], words[3]
	default:
		return "", "", "", errKeyID
	}
	u.Path = ""
	return u.String(), name, version, nil
}

// convert a JSON web key from the vault into a public key
func publicKey(jwk *azkeys.JSONWebKey) (crypto.PublicKey, error) {
	if jwk == nil || jwk.Kty == nil {
		return nil, errors.New("missing key in vault response")
	}
	switch *jwk.Kty {
	case azkeys.KeyTypeRSA, azkeys.KeyTypeRSAHSM:
		if len(jwk.N) == 0 || len(jwk.E) == 0 {
			return nil, errors.New("RSA key is missing modulus or exponent")
		}
		e := new(big.Int).SetBytes(jwk.E)
		if !e.IsInt64() || e.Int64() > 1<<31-1 {
			return nil, errors.New("RSA exponent out of range")
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(jwk.N),
			E: int(e.Int64()),
		}, nil
	case azkeys.KeyTypeEC, azkeys.KeyTypeECHSM:
		if jwk.Crv == nil {
			return nil, errors.New("EC key is missing curve")
		}
		var curve elliptic.Curve
		switch *jwk.Crv {
		case azkeys.CurveNameP256:
			curve = elliptic.P256()
		case azkeys.CurveNameP384:
			curve = elliptic.P384()
		case azkeys.CurveNameP521:
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %s", *jwk.Crv)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(jwk.X),
			Y:     new(big.Int).SetBytes(jwk.Y),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %s", *jwk.Kty)
	}
}

// select a JOSE signature algorithm based on the public key algorithm and requested hash func
func sigAlgorithm(pub crypto.PublicKey, hash crypto.Hash) (azkeys.SignatureAlgorithm, error) {
	var bits string
	switch hash {
	case crypto.SHA256:
		bits = "256"
	case crypto.SHA384:
		bits = "384"
	case crypto.SHA512:
		bits = "512"
	default:
		return "", fmt.Errorf("unsupported digest algorithm %s", hash)
	}
	switch pub.(type) {
	case *rsa.PublicKey:
		return azkeys.SignatureAlgorithm("RS" + bits), nil
	case *ecdsa.PublicKey:
		return azkeys.SignatureAlgorithm("ES" + bits), nil
	default:
		return "", fmt.Errorf("unsupported public key type %T", pub)
	}
}
