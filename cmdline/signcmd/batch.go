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
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sassoftware/winsign/cmdline/shared"
	"github.com/sassoftware/winsign/internal/metrics"
	"github.com/sassoftware/winsign/token"
)

var BatchCmd = &cobra.Command{
	Use:   "batch FILE...",
	Short: "Sign many files in place",
	Long: `Sign each file in place, several at a time, with a single key. A failure
leaves that file untouched and does not stop the others unless --fail-fast
is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: batchCmd,
}

var (
	argJobs     int
	argFailFast bool
)

func init() {
	shared.RootCmd.AddCommand(BatchCmd)
	addSignFlags(BatchCmd)
	BatchCmd.Flags().IntVarP(&argJobs, "jobs", "j", runtime.NumCPU(), "Number of files to sign at once")
	BatchCmd.Flags().BoolVar(&argFailFast, "fail-fast", false, "Stop starting new files after the first failure")
}

func batchCmd(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		if path == "-" {
			return errors.New("batch signs files in place and can't read stdin")
		}
	}
	if argJobs < 1 {
		return errors.New("--jobs must be at least 1")
	}
	scratch, err := os.MkdirTemp("", "winsign-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	tmpl, err := prepare(cmd.Context(), scratch)
	if err != nil {
		return err
	}
	defer token.Close(tmpl.Signer)
	p, err := pipeline()
	if err != nil {
		return err
	}

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(argJobs)
	for _, path := range args {
		g.Go(func() error {
			req := tmpl
			req.InFile = path
			req.OutFile = path
			result := p.Run(ctx, req)
			metrics.Observe(result)
			if result.OK() {
				return nil
			}
			failed.Add(1)
			if argFailFast {
				return result.Err
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		log.Error().Int32("failed", n).Int("files", len(args)).Msg("batch failed")
		return fmt.Errorf("%d of %d files: %w", n, len(args), shared.ErrFailed)
	}
	log.Info().Int("files", len(args)).Msg("batch complete")
	return nil
}
