package awstoken

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/token"
)

const tokenType = "aws"

// the subset of the KMS client used here
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

type awsKey struct {
	kconf *config.KeyConfig
	cli   kmsAPI
	pub   crypto.PublicKey
}

func init() {
	token.Openers[tokenType] = open
}

func open(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, pinProvider passprompt.PasswordGetter) (token.Key, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newKey(ctx, kms.NewFromConfig(cfg), kconf)
}

func newKey(ctx context.Context, cli kmsAPI, kconf *config.KeyConfig) (*awsKey, error) {
	if kconf.ID == "" {
		return nil, fmt.Errorf("key %q must have \"id\" set to the ID or ARN of the key", kconf.Name())
	}
	id := kconf.ID
	resp, err := cli.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: &id})
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(resp.PublicKey)
	if err != nil {
		return nil, err
	}
	return &awsKey{
		kconf: kconf,
		cli:   cli,
		pub:   pub,
	}, nil
}

func (k *awsKey) Public() crypto.PublicKey {
	return k.pub
}

func (k *awsKey) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	alg, err := k.sigAlgorithm(hash)
	if err != nil {
		return nil, err
	}
	resp, err := k.cli.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(k.kconf.ID),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpec(alg),
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, classify(err)
	}
	return resp.Signature, nil
}

// kmsError marks service-side KMS failures that are worth retrying
type kmsError struct {
	err error
}

func (e kmsError) Error() string { return e.err.Error() }
func (e kmsError) Unwrap() error { return e.err }
func (e kmsError) Temporary() bool { return true }

func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "KMSInternalException", "DependencyTimeoutException", "KeyUnavailableException":
		return kmsError{err}
	}
	return err
}

func (k *awsKey) Certificate() []byte {
	return nil
}

func (k *awsKey) Close() error {
	return nil
}

func (k *awsKey) sigAlgorithm(hash crypto.Hash) (string, error) {
	var alg string
	switch hash {
	case crypto.SHA256:
		alg = "SHA_256"
	case crypto.SHA384:
		alg = "SHA_384"
	case crypto.SHA512:
		alg = "SHA_512"
	default:
		return "", token.KeyUsageError{
			Key: k.kconf.Name(),
			Err: fmt.Errorf("unsupported digest algorithm %s", hash),
		}
	}
	switch k.pub.(type) {
	case *rsa.PublicKey:
		return "RSASSA_PKCS1_V1_5_" + alg, nil
	case *ecdsa.PublicKey:
		return "ECDSA_" + alg, nil
	default:
		return "", token.KeyUsageError{
			Key: k.kconf.Name(),
			Err: fmt.Errorf("unsupported public key type %T", k.pub),
		}
	}
}
