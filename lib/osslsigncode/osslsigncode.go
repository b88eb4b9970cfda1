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

// Package osslsigncode drives the osslsigncode utility, which knows how to
// compute Authenticode digests for every supported container format and how
// to embed and extract signature blobs.
package osslsigncode

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sassoftware/winsign/lib/procutil"
	"github.com/sassoftware/winsign/lib/sigerrors"
)

const (
	OpSign    = "sign"
	OpExtract = "extract-signature"
	OpAttach  = "attach-signature"
)

var DefaultCommand = []string{"osslsigncode"}

type Tool struct {
	// Command is the program to run and any leading arguments. If empty,
	// DefaultCommand is used.
	Command []string
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
}

type SignParams struct {
	InFile   string
	OutFile  string
	CertFile string
	KeyFile  string
	Hash     crypto.Hash
	// URL and Comment end up in the SpcSpOpusInfo attribute
	URL     string
	Comment string
	// CrossCertFile holds additional certificates to include
	CrossCertFile string
}

// HashArg returns the name osslsigncode uses for a digest algorithm
func HashArg(hash crypto.Hash) (string, error) {
	switch hash {
	case crypto.SHA1:
		return "sha1", nil
	case crypto.SHA256:
		return "sha256", nil
	case crypto.SHA384:
		return "sha384", nil
	case crypto.SHA512:
		return "sha512", nil
	default:
		return "", fmt.Errorf("digest algorithm %s is not supported by osslsigncode", hash)
	}
}

// Sign InFile with a local certificate and key, writing the result to OutFile
func (t Tool) Sign(ctx context.Context, p SignParams) error {
	hashArg, err := HashArg(p.Hash)
	if err != nil {
		return err
	}
	args := []string{
		"-certs", p.CertFile,
		"-key", p.KeyFile,
		"-h", hashArg,
		"-in", p.InFile,
		"-out", p.OutFile,
	}
	if p.URL != "" {
		args = append(args, "-i", p.URL)
	}
	if p.Comment != "" {
		args = append(args, "-n", p.Comment)
	}
	if p.CrossCertFile != "" {
		args = append(args, "-ac", p.CrossCertFile)
	}
	return t.run(ctx, OpSign, args...)
}

// ExtractSignature writes the PKCS#7 signature of infile to sigfile in PEM form
func (t Tool) ExtractSignature(ctx context.Context, infile, sigfile string) error {
	return t.run(ctx, OpExtract, "-in", infile, "-out", sigfile, "-pem")
}

// AttachSignature embeds the signature in sigfile into a copy of infile
// written to outfile. PE images expect a WIN_CERTIFICATE in sigfile.
func (t Tool) AttachSignature(ctx context.Context, infile, sigfile, outfile string) error {
	return t.run(ctx, OpAttach, "-sigin", sigfile, "-in", infile, "-out", outfile)
}

func (t Tool) run(ctx context.Context, op string, args ...string) error {
	cmdline := t.Command
	if len(cmdline) == 0 {
		cmdline = DefaultCommand
	}
	cmdline = append(append(append([]string(nil), cmdline...), op), args...)
	logger := zerolog.Ctx(ctx)
	cmd := procutil.CommandContext(ctx, cmdline, t.Timeout)
	logger.Debug().Str("cmdline", cmd.FormatCmdline()).Msg("running signing tool")
	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", t.Timeout)
		}
		logger.Error().
			Str("op", op).
			Int("exit_code", procutil.ExitCode(err)).
			Msgf("osslsigncode failed when running %s", op)
		for _, line := range strings.Split(strings.TrimRight(cmd.Output, "\n"), "\n") {
			logger.Debug().Str("op", op).Msg(line)
		}
		return &sigerrors.ToolError{Op: op, Output: cmd.Output, Err: err}
	}
	logger.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Msg("signing tool finished")
	return nil
}
