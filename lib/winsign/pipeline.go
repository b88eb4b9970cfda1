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

// Package winsign re-signs Authenticode files with a key that the signing
// utility never sees. The file is first signed with a throwaway identity so
// that the utility computes the digest, then the signature is rebuilt around
// a signature from the real key and attached in place of the dummy one.
package winsign

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/winsign/lib/atomicfile"
	"github.com/sassoftware/winsign/lib/authenticode"
	"github.com/sassoftware/winsign/lib/magic"
	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/token"
)

type Request struct {
	InFile string
	// OutFile defaults to InFile. "-" writes to stdout.
	OutFile string
	Hash    crypto.Hash
	URL     string
	Comment string
	// CrossCertFile is handed to the dummy signing step. The same
	// certificates should also appear at the end of Certificates.
	CrossCertFile string
	// Certificates is the leaf matching Signer, then intermediates, then
	// cross-certificates
	Certificates []*x509.Certificate
	Signer       token.Signer
	// SigningTime replaces the signing-time attribute if set
	SigningTime time.Time
}

type Pipeline struct {
	Tool Tool
	// TempDir is where scratch directories are created. Empty means the
	// system default.
	TempDir string
}

// per-run state handed from one stage to the next
type run struct {
	req     Request
	dir     string
	boot    *Bootstrapper
	signed  string
	der     []byte
	psd     *pkcs7.ContentInfoSignedData
	newSig  []byte
	sigFile string
}

type stage struct {
	to State
	fn func(ctx context.Context) error
}

func (r *run) stages() []stage {
	return []stage{
		{StateDummySigned, r.signDummy},
		{StateExtracted, r.extract},
		{StateDecoded, r.decode},
		{StateResigned, r.resign},
		{StatePackaged, r.pack},
		{StateAttached, r.attach},
	}
}

// Run signs one file. The destination is only written once every stage has
// succeeded, and the scratch directory is always removed.
func (p *Pipeline) Run(ctx context.Context, req Request) (result Result) {
	logger := log.Ctx(ctx).With().
		Str("req_id", uuid.NewString()).
		Str("file", req.InFile).
		Logger()
	ctx = logger.WithContext(ctx)
	result = Result{
		State:     StateStart,
		Durations: make(map[State]time.Duration),
	}
	fail := func(at State, err error) Result {
		result.State = StateFailed
		result.FailedAt = at
		result.Err = err
		logger.Error().
			Stringer("stage", at).
			Str("kind", sigerrors.Kind(err)).
			Msg("signing failed")
		logger.Debug().Err(err).Stringer("stage", at).Msg("failure detail")
		return result
	}
	if err := validate(&req); err != nil {
		return fail(StateStart, err)
	}
	dir, err := os.MkdirTemp(p.TempDir, "winsign-")
	if err != nil {
		return fail(StateStart, err)
	}
	defer os.RemoveAll(dir)

	r := &run{
		req:  req,
		dir:  dir,
		boot: &Bootstrapper{Tool: p.Tool, Dir: dir},
	}
	for _, st := range r.stages() {
		if err := ctx.Err(); err != nil {
			return fail(st.to, err)
		}
		start := time.Now()
		if err := st.fn(ctx); err != nil {
			return fail(st.to, err)
		}
		elapsed := time.Since(start)
		result.State = st.to
		result.Durations[st.to] = elapsed
		logger.Debug().Stringer("stage", st.to).Dur("elapsed", elapsed).Msg("stage complete")
	}
	logger.Info().Str("output", req.OutFile).Msg("signed")
	return result
}

func validate(req *Request) error {
	switch {
	case req.InFile == "":
		return errors.New("no input file given")
	case len(req.Certificates) == 0:
		return errors.New("no certificates given")
	case req.Signer == nil:
		return errors.New("no signer given")
	}
	if req.OutFile == "" {
		req.OutFile = req.InFile
	}
	if req.Hash == 0 {
		req.Hash = crypto.SHA256
	}
	return nil
}

func (r *run) signDummy(ctx context.Context) error {
	signed, err := r.boot.SignDummy(ctx, BootstrapParams{
		InFile:        r.req.InFile,
		Hash:          r.req.Hash,
		URL:           r.req.URL,
		Comment:       r.req.Comment,
		CrossCertFile: r.req.CrossCertFile,
	})
	r.signed = signed
	return err
}

func (r *run) extract(ctx context.Context) error {
	der, err := r.boot.Extract(ctx, r.signed)
	r.der = der
	return err
}

func (r *run) decode(ctx context.Context) error {
	psd, err := pkcs7.Unmarshal(r.der)
	r.psd = psd
	return err
}

func (r *run) resign(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Msg("re-signing with real key")
	sig, err := authenticode.Resign(ctx, r.psd, r.req.Certificates, r.req.Signer, authenticode.ResignOptions{
		SigningTime: r.req.SigningTime,
	})
	r.newSig = sig
	return err
}

func (r *run) pack(ctx context.Context) error {
	ft, err := magic.DetectFile(r.req.InFile)
	if err != nil {
		return &sigerrors.AttachError{Err: err}
	}
	blob := authenticode.PackageSignature(r.newSig, ft == magic.FileTypePECOFF)
	r.sigFile = filepath.Join(r.dir, "signature.bin")
	if err := os.WriteFile(r.sigFile, blob, 0600); err != nil {
		return &sigerrors.AttachError{Err: err}
	}
	return nil
}

func (r *run) attach(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Msg("attaching new signature")
	out := filepath.Join(r.dir, "signed2"+filepath.Ext(r.req.InFile))
	if err := r.boot.Tool.AttachSignature(ctx, r.req.InFile, r.sigFile, out); err != nil {
		return &sigerrors.AttachError{Err: err}
	}
	f, err := os.Open(out)
	if err != nil {
		return &sigerrors.AttachError{Err: err}
	}
	defer f.Close()
	if err := atomicfile.WriteFrom(r.req.OutFile, f); err != nil {
		return &sigerrors.AttachError{Err: err}
	}
	return nil
}
