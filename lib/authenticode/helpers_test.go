package authenticode

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"debug/pe"
	"encoding/asn1"
	"encoding/binary"
	"testing"

	"github.com/github/fakeca"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/x509tools"
)

var (
	testRoot = fakeca.New(fakeca.IsCA, fakeca.Subject(pkix.Name{CommonName: "Test Root"}))

	dummyKey  = mustGenerateRSA()
	dummyLeaf = testRoot.Issue(fakeca.PrivateKey(dummyKey), fakeca.Subject(pkix.Name{CommonName: "Dummy Signer"}))

	realKey  = mustGenerateRSA()
	realLeaf = testRoot.Issue(fakeca.PrivateKey(realKey), fakeca.Subject(pkix.Name{CommonName: "Release Signer"}))

	// default fakeca key is ECDSA
	ecLeaf = testRoot.Issue(fakeca.Subject(pkix.Name{CommonName: "EC Signer"}))
)

const (
	testOptHeader = 0x58
	testDDCert    = testOptHeader + 128
	testCksum     = testOptHeader + 64
)

func mustGenerateRSA() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

type templateParams struct {
	hash        crypto.Hash
	imageDigest []byte
	programName string
	url         string
	extra       pkcs7.AttributeList
}

// build an Authenticode signature over a PE image digest
func makeSignature(t *testing.T, certs []*x509.Certificate, key crypto.Signer, p templateParams) []byte {
	t.Helper()
	if p.hash == 0 {
		p.hash = crypto.SHA256
	}
	if p.imageDigest == nil {
		p.imageDigest = bytes.Repeat([]byte{0xa5}, p.hash.Size())
	}
	alg, ok := x509tools.PkixDigestAlgorithm(p.hash)
	require.True(t, ok)
	indirect := SpcIndirectDataContent{
		Data: SpcAttributeTypeAndOptionalValue{
			Type:  OidSpcPeImageData,
			Value: asn1.RawValue{FullBytes: []byte{0x30, 0x03, 0x03, 0x01, 0x00}},
		},
		MessageDigest: DigestInfo{DigestAlgorithm: alg, Digest: p.imageDigest},
	}
	ci, err := pkcs7.NewContentInfo(OidSpcIndirectDataContent, indirect)
	require.NoError(t, err)
	content, err := ci.Bytes()
	require.NoError(t, err)
	d := p.hash.New()
	d.Write(content)

	var attrs pkcs7.AttributeList
	require.NoError(t, attrs.Add(pkcs7.OidAttributeContentType, OidSpcIndirectDataContent))
	require.NoError(t, attrs.Add(pkcs7.OidAttributeMessageDigest, d.Sum(nil)))
	require.NoError(t, attrs.Add(OidSpcStatementType, SpcSpStatementType{Type: OidSpcIndividualPurpose}))
	if p.programName != "" || p.url != "" {
		opus, err := NewSpcSpOpusInfo(p.programName, p.url)
		require.NoError(t, err)
		require.NoError(t, attrs.Add(OidSpcSpOpusInfo, opus))
	}
	attrs = append(attrs, p.extra...)
	attrBytes, err := attrs.Bytes()
	require.NoError(t, err)
	d = p.hash.New()
	d.Write(attrBytes)
	sig, err := key.Sign(rand.Reader, d.Sum(nil), p.hash)
	require.NoError(t, err)
	der, err := pkcs7.Encode(certs, pkcs7.SignerTemplate{
		Hash:                    p.hash,
		ContentInfo:             ci,
		AuthenticatedAttributes: attrs,
	}, sig)
	require.NoError(t, err)
	return der
}

// build a minimal unsigned PE32 image with no sections
func makePE(t *testing.T, bodyLen int) []byte {
	t.Helper()
	var buf bytes.Buffer
	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}))
	require.Equal(t, testOptHeader, buf.Len())
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, pe.OptionalHeader32{
		Magic:               0x10b,
		CheckSum:            0x12345678,
		NumberOfRvaAndSizes: 16,
	}))
	for i := 0; i < bodyLen; i++ {
		buf.WriteByte(byte(i*7 + 3))
	}
	return buf.Bytes()
}

// append a certificate table holding sigs the way the attach tool does
func embedSignatures(img []byte, sigs ...[]byte) []byte {
	out := append([]byte(nil), img...)
	if pad := len(out) % 8; pad != 0 {
		out = append(out, make([]byte, 8-pad)...)
	}
	start := len(out)
	for _, sig := range sigs {
		out = append(out, PackWinCertificate(sig)...)
	}
	binary.LittleEndian.PutUint32(out[testDDCert:], uint32(start))
	binary.LittleEndian.PutUint32(out[testDDCert+4:], uint32(len(out)-start))
	// a real signer updates the checksum too
	binary.LittleEndian.PutUint32(out[testCksum:], 0xdeadbeef)
	return out
}
