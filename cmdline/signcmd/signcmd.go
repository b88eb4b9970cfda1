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

package signcmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sassoftware/winsign/cmdline/shared"
	"github.com/sassoftware/winsign/internal/metrics"
	"github.com/sassoftware/winsign/lib/winsign"
	"github.com/sassoftware/winsign/token"
)

var SignCmd = &cobra.Command{
	Use:   "sign INFILE [OUTFILE]",
	Short: "Sign a Windows binary",
	Long: `Sign a PE, MSI or CAB file. The file is first signed by osslsigncode with a
throwaway key, then the signature is rebuilt around the real key and
attached. OUTFILE defaults to INFILE. Use - to read from stdin or write to
stdout.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: signCmd,
}

var (
	argCerts       string
	argKey         string
	argKeyName     string
	argCrossCert   string
	argComment     string
	argURL         string
	argSigningTime string

	argAutographURL    string
	argAutographUser   string
	argAutographSecret string
	argAutographKeyID  string
)

// newTool is replaced in tests
var newTool = func() (winsign.Tool, error) {
	return shared.Tool()
}

func init() {
	shared.RootCmd.AddCommand(SignCmd)
	addSignFlags(SignCmd)
}

func addSignFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&argCerts, "certs", "", "Certificate chain to include in the signature, leaf first")
	flags.StringVar(&argKey, "key", "", "Private key file (PEM, DER or PKCS#12) to sign with")
	flags.StringVar(&argKeyName, "key-name", "", "Name of a key from the configuration file")
	flags.StringVar(&argCrossCert, "cross-cert", "", "Cross-certificate to append to the chain")
	flags.StringVarP(&argComment, "comment", "n", "", "Program name to include in the signature")
	flags.StringVarP(&argURL, "url", "i", "", "URL to include in the signature")
	flags.StringVar(&argSigningTime, "signing-time", "", "Override the signing time (RFC 3339)")
	flags.StringVar(&argAutographURL, "autograph-url", "", "Autograph server URL (default $AUTOGRAPH_URL)")
	flags.StringVar(&argAutographUser, "autograph-user", "", "Autograph Hawk user (default $AUTOGRAPH_USER)")
	flags.StringVar(&argAutographSecret, "autograph-secret", "", "Autograph Hawk secret (default $AUTOGRAPH_SECRET)")
	flags.StringVar(&argAutographKeyID, "autograph-keyid", "", "Autograph signer ID (default $AUTOGRAPH_KEYID)")
	cmd.MarkFlagsMutuallyExclusive("key", "key-name")
	shared.AddDigestFlag(flags)
}

func signCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	infile := args[0]
	outfile := infile
	if len(args) > 1 {
		outfile = args[1]
	}
	scratch, err := os.MkdirTemp("", "winsign-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	if infile == "-" {
		infile, err = spoolStdin(cmd.InOrStdin(), scratch)
		if err != nil {
			return err
		}
	}
	tmpl, err := prepare(ctx, scratch)
	if err != nil {
		return err
	}
	defer token.Close(tmpl.Signer)
	p, err := pipeline()
	if err != nil {
		return err
	}
	req := tmpl
	req.InFile = infile
	req.OutFile = outfile
	result := p.Run(ctx, req)
	metrics.Observe(result)
	if !result.OK() {
		return fmt.Errorf("%s: %w", args[0], shared.ErrFailed)
	}
	return nil
}

// prepare opens the signing key and builds a request template shared by every
// file signed in this invocation
func prepare(ctx context.Context, scratch string) (winsign.Request, error) {
	hash, err := shared.GetDigest()
	if err != nil {
		return winsign.Request{}, err
	}
	var signingTime time.Time
	if argSigningTime != "" {
		signingTime, err = time.Parse(time.RFC3339, argSigningTime)
		if err != nil {
			return winsign.Request{}, fmt.Errorf("--signing-time: %w", err)
		}
	}
	kconf, err := resolveKey()
	if err != nil {
		return winsign.Request{}, err
	}
	crossFile, err := crossCertFile(kconf.CrossCertificates, scratch)
	if err != nil {
		return winsign.Request{}, err
	}
	signer, cert, err := openKey(ctx, kconf)
	if err != nil {
		return winsign.Request{}, err
	}
	return winsign.Request{
		Hash:          hash,
		URL:           argURL,
		Comment:       argComment,
		CrossCertFile: crossFile,
		Certificates:  cert.Certificates,
		Signer:        signer,
		SigningTime:   signingTime,
	}, nil
}

func pipeline() (*winsign.Pipeline, error) {
	tool, err := newTool()
	if err != nil {
		return nil, err
	}
	return &winsign.Pipeline{Tool: tool}, nil
}

// copy stdin to a file so the signing tool can read it more than once
func spoolStdin(r io.Reader, dir string) (string, error) {
	path := filepath.Join(dir, "stdin")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return path, f.Close()
}
