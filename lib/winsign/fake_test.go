package winsign

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"debug/pe"
	"encoding/asn1"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sassoftware/winsign/lib/authenticode"
	"github.com/sassoftware/winsign/lib/certloader"
	"github.com/sassoftware/winsign/lib/magic"
	"github.com/sassoftware/winsign/lib/osslsigncode"
	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/x509tools"
)

// fakeTool stands in for osslsigncode. Its "signed" file holds nothing but
// the signature, and attaching appends the signature blob to the input.
type fakeTool struct {
	t       *testing.T
	failOp  string
	corrupt bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeTool) record(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
	if op == f.failOp {
		return &sigerrors.ToolError{Op: op, Output: "Failed\n", Err: errors.New("exit status 1")}
	}
	return nil
}

func (f *fakeTool) Sign(ctx context.Context, p osslsigncode.SignParams) error {
	if err := f.record(osslsigncode.OpSign); err != nil {
		return err
	}
	keyBlob, err := os.ReadFile(p.KeyFile)
	if err != nil {
		return err
	}
	key, err := certloader.ParsePrivateKey(keyBlob)
	if err != nil {
		return err
	}
	certBlob, err := os.ReadFile(p.CertFile)
	if err != nil {
		return err
	}
	cert, err := certloader.ParseCertificates(certBlob)
	if err != nil {
		return err
	}
	img, err := os.ReadFile(p.InFile)
	if err != nil {
		return err
	}
	var imageDigest []byte
	if magic.Detect(bytes.NewReader(img)) == magic.FileTypePECOFF {
		imageDigest, err = authenticode.DigestPE(bytes.NewReader(img), int64(len(img)), p.Hash)
		if err != nil {
			return err
		}
	} else {
		d := p.Hash.New()
		d.Write(img)
		imageDigest = d.Sum(nil)
	}
	der := makeSignature(f.t, cert.Certificates, key.(crypto.Signer), p.Hash, imageDigest, p.Comment, p.URL)
	return os.WriteFile(p.OutFile, der, 0644)
}

func (f *fakeTool) ExtractSignature(ctx context.Context, infile, sigfile string) error {
	if err := f.record(osslsigncode.OpExtract); err != nil {
		return err
	}
	der, err := os.ReadFile(infile)
	if err != nil {
		return err
	}
	if f.corrupt {
		der = []byte{0x30, 0x03, 0x02, 0x01, 0x01}
	}
	return os.WriteFile(sigfile, pem.EncodeToMemory(&pem.Block{Type: "PKCS7", Bytes: der}), 0644)
}

func (f *fakeTool) AttachSignature(ctx context.Context, infile, sigfile, outfile string) error {
	if err := f.record(osslsigncode.OpAttach); err != nil {
		return err
	}
	img, err := os.ReadFile(infile)
	if err != nil {
		return err
	}
	sig, err := os.ReadFile(sigfile)
	if err != nil {
		return err
	}
	return os.WriteFile(outfile, append(img, sig...), 0644)
}

func makeSignature(t *testing.T, certs []*x509.Certificate, key crypto.Signer, hash crypto.Hash, imageDigest []byte, comment, url string) []byte {
	t.Helper()
	alg, ok := x509tools.PkixDigestAlgorithm(hash)
	require.True(t, ok)
	indirect := authenticode.SpcIndirectDataContent{
		Data: authenticode.SpcAttributeTypeAndOptionalValue{
			Type:  authenticode.OidSpcPeImageData,
			Value: asn1.RawValue{FullBytes: []byte{0x30, 0x03, 0x03, 0x01, 0x00}},
		},
		MessageDigest: authenticode.DigestInfo{DigestAlgorithm: alg, Digest: imageDigest},
	}
	ci, err := pkcs7.NewContentInfo(authenticode.OidSpcIndirectDataContent, indirect)
	require.NoError(t, err)
	content, err := ci.Bytes()
	require.NoError(t, err)
	d := hash.New()
	d.Write(content)
	var attrs pkcs7.AttributeList
	require.NoError(t, attrs.Add(pkcs7.OidAttributeContentType, authenticode.OidSpcIndirectDataContent))
	require.NoError(t, attrs.Add(pkcs7.OidAttributeMessageDigest, d.Sum(nil)))
	if comment != "" || url != "" {
		opus, err := authenticode.NewSpcSpOpusInfo(comment, url)
		require.NoError(t, err)
		require.NoError(t, attrs.Add(authenticode.OidSpcSpOpusInfo, opus))
	}
	attrBytes, err := attrs.Bytes()
	require.NoError(t, err)
	d = hash.New()
	d.Write(attrBytes)
	sig, err := key.Sign(rand.Reader, d.Sum(nil), hash)
	require.NoError(t, err)
	der, err := pkcs7.Encode(certs, pkcs7.SignerTemplate{
		Hash:                    hash,
		ContentInfo:             ci,
		AuthenticatedAttributes: attrs,
	}, sig)
	require.NoError(t, err)
	return der
}

// makePE builds a small PE32 image with one section, laid out so that every
// byte belongs to either the headers or the section
func makePE(t *testing.T) []byte {
	t.Helper()
	const (
		headerSize  = 0x200
		sectionSize = 0x200
	)
	var buf bytes.Buffer
	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE,
	}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            sectionSize,
		AddressOfEntryPoint:   0x1000,
		BaseOfCode:            0x1000,
		ImageBase:             0x400000,
		SectionAlignment:      0x1000,
		FileAlignment:         0x200,
		MajorSubsystemVersion: 4,
		SizeOfImage:           0x2000,
		SizeOfHeaders:         headerSize,
		Subsystem:             pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		NumberOfRvaAndSizes:   16,
	}))
	var name [8]uint8
	copy(name[:], ".text")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, pe.SectionHeader32{
		Name:             name,
		VirtualSize:      sectionSize,
		VirtualAddress:   0x1000,
		SizeOfRawData:    sectionSize,
		PointerToRawData: headerSize,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	}))
	buf.Write(make([]byte, headerSize-buf.Len()))
	section := make([]byte, sectionSize)
	section[0] = 0xc3
	for i := 1; i < len(section); i++ {
		section[i] = byte(i)
	}
	buf.Write(section)
	return buf.Bytes()
}

var testSubject = pkix.Name{CommonName: "Release Signer"}
