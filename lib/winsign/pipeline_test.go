package winsign

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509/pkix"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/github/fakeca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/lib/authenticode"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/lib/osslsigncode"
	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/x509tools"
	"github.com/sassoftware/winsign/token"
)

var (
	testRoot = fakeca.New(fakeca.IsCA, fakeca.Subject(pkix.Name{CommonName: "Test Root"}))
	testKey  = mustGenerateRSA()
	testLeaf = testRoot.Issue(fakeca.PrivateKey(testKey), fakeca.Subject(testSubject))
)

func mustGenerateRSA() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

func setup(t *testing.T, contents []byte) (string, string) {
	dir := t.TempDir()
	infile := filepath.Join(dir, "app.exe")
	require.NoError(t, os.WriteFile(infile, contents, 0755))
	return dir, infile
}

func newRequest(infile, outfile string) Request {
	return Request{
		InFile:       infile,
		OutFile:      outfile,
		Hash:         crypto.SHA256,
		Comment:      "Widget",
		URL:          "https://example.com",
		Certificates: testLeaf.Chain(),
		Signer:       token.FromCryptoSigner(testKey),
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "START", StateStart.String())
	assert.Equal(t, "DUMMY_SIGNED", StateDummySigned.String())
	assert.Equal(t, "ATTACHED", StateAttached.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestStageOrder(t *testing.T) {
	r := &run{}
	stages := r.stages()
	require.Len(t, stages, int(StateAttached))
	for i, st := range stages {
		assert.Equal(t, State(i+1), st.to)
		assert.NotNil(t, st.fn)
	}
}

func TestDummyIdentity(t *testing.T) {
	cert, err := certloader.ParseCertificates(DummyPEM)
	require.NoError(t, err)
	assert.Equal(t, "Dummy Cert", cert.Leaf.Subject.CommonName)
	key, err := certloader.ParsePrivateKey(DummyPEM)
	require.NoError(t, err)
	assert.True(t, x509tools.SameKey(cert.Leaf.PublicKey, key))
}

func TestPipelinePE(t *testing.T) {
	img := makePE(t)
	dir, infile := setup(t, img)
	outfile := filepath.Join(dir, "signed.exe")
	scratch := t.TempDir()
	tool := &fakeTool{t: t}
	p := &Pipeline{Tool: tool, TempDir: scratch}

	result := p.Run(context.Background(), newRequest(infile, outfile))
	require.NoError(t, result.Err)
	assert.True(t, result.OK())
	assert.Equal(t, StateAttached, result.State)
	assert.Len(t, result.Durations, 6)
	assert.Equal(t, []string{osslsigncode.OpSign, osslsigncode.OpExtract, osslsigncode.OpAttach}, tool.calls)

	// input untouched, output is input plus a WIN_CERTIFICATE
	orig, err := os.ReadFile(infile)
	require.NoError(t, err)
	assert.Equal(t, img, orig)
	signed, err := os.ReadFile(outfile)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(signed, img))
	sigs, err := authenticode.UnpackCertificateTable(signed[len(img):])
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig, err := authenticode.VerifySignature(sigs[0])
	require.NoError(t, err)
	assert.Equal(t, testLeaf.Certificate.Raw, sig.Certificate.Raw)
	assert.Equal(t, authenticode.OpusInfo{ProgramName: "Widget", URL: "https://example.com"}, sig.Opus)
	imageDigest, err := authenticode.DigestPE(bytes.NewReader(img), int64(len(img)), crypto.SHA256)
	require.NoError(t, err)
	assert.Equal(t, imageDigest, sig.Indirect.MessageDigest.Digest)

	// scratch directory is cleaned up
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipelineDigests(t *testing.T) {
	for _, hash := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		t.Run(hash.String(), func(t *testing.T) {
			img := makePE(t)
			_, infile := setup(t, img)
			tool := &fakeTool{t: t}
			req := newRequest(infile, "")
			req.Hash = hash
			result := (&Pipeline{Tool: tool}).Run(context.Background(), req)
			require.NoError(t, result.Err)

			// signed in place
			signed, err := os.ReadFile(infile)
			require.NoError(t, err)
			sigs, err := authenticode.UnpackCertificateTable(signed[len(img):])
			require.NoError(t, err)
			psd, err := pkcs7.Unmarshal(sigs[0])
			require.NoError(t, err)
			gotHash, _, err := psd.Content.ExtractDigest()
			require.NoError(t, err)
			assert.Equal(t, hash, gotHash)
			sig, err := authenticode.VerifySignature(sigs[0])
			require.NoError(t, err)
			expected, err := authenticode.DigestPE(bytes.NewReader(img), int64(len(img)), hash)
			require.NoError(t, err)
			assert.Equal(t, expected, sig.Indirect.MessageDigest.Digest)
		})
	}
}

func TestPipelineNotPE(t *testing.T) {
	contents := []byte("this is not a PE file, but the tool can sign it anyway")
	dir, infile := setup(t, contents)
	outfile := filepath.Join(dir, "signed.bin")
	result := (&Pipeline{Tool: &fakeTool{t: t}}).Run(context.Background(), newRequest(infile, outfile))
	require.NoError(t, result.Err)
	signed, err := os.ReadFile(outfile)
	require.NoError(t, err)
	// bare PKCS#7, no WIN_CERTIFICATE header
	_, err = authenticode.VerifySignature(signed[len(contents):])
	require.NoError(t, err)
}

func TestPipelineToolFailure(t *testing.T) {
	img := makePE(t)
	for _, tc := range []struct {
		op       string
		failedAt State
	}{
		{osslsigncode.OpSign, StateDummySigned},
		{osslsigncode.OpExtract, StateExtracted},
		{osslsigncode.OpAttach, StateAttached},
	} {
		t.Run(tc.op, func(t *testing.T) {
			dir, infile := setup(t, img)
			outfile := filepath.Join(dir, "signed.exe")
			result := (&Pipeline{Tool: &fakeTool{t: t, failOp: tc.op}}).Run(context.Background(), newRequest(infile, outfile))
			assert.False(t, result.OK())
			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, tc.failedAt, result.FailedAt)
			var toolErr *sigerrors.ToolError
			require.ErrorAs(t, result.Err, &toolErr)
			assert.Equal(t, tc.op, toolErr.Op)
			if tc.op == osslsigncode.OpAttach {
				var attachErr *sigerrors.AttachError
				assert.ErrorAs(t, result.Err, &attachErr)
			}
			assert.NoFileExists(t, outfile)
			orig, err := os.ReadFile(infile)
			require.NoError(t, err)
			assert.Equal(t, img, orig)
		})
	}
}

func TestPipelineSignerFailure(t *testing.T) {
	img := makePE(t)
	_, infile := setup(t, img)
	tool := &fakeTool{t: t}
	req := newRequest(infile, "")
	req.Signer = token.SignerFunc(func(context.Context, []byte, crypto.Hash) ([]byte, error) {
		return nil, errors.New("permission denied")
	})
	result := (&Pipeline{Tool: tool}).Run(context.Background(), req)
	assert.Equal(t, StateResigned, result.FailedAt)
	var failed *sigerrors.SigningFailed
	require.ErrorAs(t, result.Err, &failed)
	assert.Equal(t, "signing", sigerrors.Kind(result.Err))
	assert.NotContains(t, tool.calls, osslsigncode.OpAttach)
	orig, err := os.ReadFile(infile)
	require.NoError(t, err)
	assert.Equal(t, img, orig)
}

func TestPipelineMalformed(t *testing.T) {
	_, infile := setup(t, makePE(t))
	result := (&Pipeline{Tool: &fakeTool{t: t, corrupt: true}}).Run(context.Background(), newRequest(infile, ""))
	assert.Equal(t, StateDecoded, result.FailedAt)
	var malformed *sigerrors.MalformedSignature
	assert.ErrorAs(t, result.Err, &malformed)
}

func TestPipelineInvalidRequest(t *testing.T) {
	_, infile := setup(t, makePE(t))
	tool := &fakeTool{t: t}
	req := newRequest(infile, "")
	req.Certificates = nil
	result := (&Pipeline{Tool: tool}).Run(context.Background(), req)
	assert.Equal(t, StateStart, result.FailedAt)
	assert.Error(t, result.Err)
	assert.Empty(t, tool.calls)
}

func TestPipelineCanceled(t *testing.T) {
	_, infile := setup(t, makePE(t))
	tool := &fakeTool{t: t}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := (&Pipeline{Tool: tool}).Run(ctx, newRequest(infile, ""))
	assert.Equal(t, StateDummySigned, result.FailedAt)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, tool.calls)
}

func TestPipelineOsslsigncode(t *testing.T) {
	if _, err := exec.LookPath("osslsigncode"); err != nil {
		t.Skip("osslsigncode not installed")
	}
	img := makePE(t)
	dir, infile := setup(t, img)
	outfile := filepath.Join(dir, "signed.exe")
	result := (&Pipeline{Tool: osslsigncode.Tool{}}).Run(context.Background(), newRequest(infile, outfile))
	require.NoError(t, result.Err)

	f, err := os.Open(outfile)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)
	// checks the image digest against an independent computation
	sigs, err := authenticode.VerifyPE(f, st.Size(), false)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, testLeaf.Certificate.Raw, sigs[0].Certificate.Raw)
	assert.Equal(t, "Widget", sigs[0].Opus.ProgramName)
}
