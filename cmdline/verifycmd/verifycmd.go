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

package verifycmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sassoftware/winsign/cmdline/shared"
	"github.com/sassoftware/winsign/lib/authenticode"
	"github.com/sassoftware/winsign/lib/magic"
	"github.com/sassoftware/winsign/lib/pkcs7"
	"github.com/sassoftware/winsign/lib/winsign"
	"github.com/sassoftware/winsign/lib/x509tools"
)

var VerifyCmd = &cobra.Command{
	Use:   "verify FILE...",
	Short: "Check the Authenticode signatures on files",
	Long: `Decode each signature and check it against the certificate embedded in it.
For PE files the image digest is recomputed as well. Certificate chains are
not validated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: verifyCmd,
}

var argNoDigests bool

// newTool is replaced in tests
var newTool = func() (winsign.Tool, error) {
	return shared.Tool()
}

func init() {
	shared.RootCmd.AddCommand(VerifyCmd)
	VerifyCmd.Flags().BoolVar(&argNoDigests, "no-digests", false, "Don't recompute PE image digests")
}

func verifyCmd(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		if err := verifyOne(cmd.Context(), path, cmd.OutOrStdout()); err != nil {
			zerolog.Ctx(cmd.Context()).Error().Str("file", path).Err(err).Msg("verification failed")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED: %s\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files: %w", failed, len(args), shared.ErrFailed)
	}
	return nil
}

func verifyOne(ctx context.Context, path string, w io.Writer) error {
	ft, err := magic.DetectFile(path)
	if err != nil {
		return err
	}
	var sigs []*authenticode.Signature
	switch ft {
	case magic.FileTypePECOFF:
		sigs, err = verifyPE(path)
	case magic.FileTypePKCS7:
		sigs, err = verifyBlob(path)
	case magic.FileTypeMSI, magic.FileTypeCAB:
		sigs, err = verifyWithTool(ctx, path)
	default:
		return fmt.Errorf("unrecognized file type")
	}
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		printSignature(w, path, ft, sig)
	}
	return nil
}

func verifyPE(path string) ([]*authenticode.Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return authenticode.VerifyPE(f, info.Size(), argNoDigests)
}

func verifyBlob(path string) ([]*authenticode.Signature, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sig, err := authenticode.VerifySignature(der)
	if err != nil {
		return nil, err
	}
	return []*authenticode.Signature{sig}, nil
}

// MSI and CAB signatures are pulled out by the signing tool. Their image
// digests are not recomputed.
func verifyWithTool(ctx context.Context, path string) ([]*authenticode.Signature, error) {
	tool, err := newTool()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "winsign-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	boot := &winsign.Bootstrapper{Tool: tool, Dir: dir}
	der, err := boot.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	sig, err := authenticode.VerifySignature(der)
	if err != nil {
		return nil, err
	}
	return []*authenticode.Signature{sig}, nil
}

func printSignature(w io.Writer, path string, ft magic.FileType, sig *authenticode.Signature) {
	fmt.Fprintf(w, "%s: OK (%s)\n", path, ft)
	fmt.Fprintf(w, "  signer:  %s\n", x509tools.FormatSubject(sig.Certificate))
	fmt.Fprintf(w, "  issuer:  %s\n", x509tools.FormatIssuer(sig.Certificate))
	fmt.Fprintf(w, "  digest:  %s %x\n", x509tools.HashName(sig.ImageHash), sig.Indirect.MessageDigest.Digest)
	if sig.Opus.ProgramName != "" {
		fmt.Fprintf(w, "  program: %s\n", sig.Opus.ProgramName)
	}
	if sig.Opus.URL != "" {
		fmt.Fprintf(w, "  url:     %s\n", sig.Opus.URL)
	}
	var signingTime time.Time
	if err := sig.SignerInfo.AuthenticatedAttributes.GetOne(pkcs7.OidAttributeSigningTime, &signingTime); err == nil {
		fmt.Fprintf(w, "  signed:  %s\n", signingTime.UTC().Format(time.RFC3339))
	}
}
