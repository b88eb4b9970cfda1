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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/internal/logging"
	"github.com/sassoftware/winsign/internal/metrics"
)

var (
	ArgConfig      string
	ArgVerbose     bool
	ArgQuiet       bool
	ArgLogFile     string
	ArgMetricsFile string

	CurrentConfig *config.Config
)

var RootCmd = &cobra.Command{
	Use:               "winsign",
	Short:             "Re-sign Windows binaries with a key the signing tool can't reach",
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&ArgConfig, "config", "c", "", "Configuration file")
	RootCmd.PersistentFlags().BoolVarP(&ArgVerbose, "verbose", "v", false, "Log debug messages")
	RootCmd.PersistentFlags().BoolVarP(&ArgQuiet, "quiet", "q", false, "Log only warnings and errors")
	RootCmd.PersistentFlags().StringVar(&ArgLogFile, "log-file", "", "Write JSON logs to this file, or - for stderr")
	RootCmd.PersistentFlags().StringVar(&ArgMetricsFile, "metrics-file", "", "Write metrics in Prometheus text format to this file on exit")
	RootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := InitConfig(); err != nil {
		return err
	}
	level := CurrentConfig.LogLevel
	switch {
	case ArgVerbose:
		level = "debug"
	case ArgQuiet:
		level = "warn"
	}
	logFile := CurrentConfig.LogFile
	if ArgLogFile != "" {
		logFile = ArgLogFile
	}
	return logging.Setup(level, logFile)
}

// Main runs the selected command and exits with a failure status if it
// returns an error
func Main() {
	err := RootCmd.ExecuteContext(context.Background())
	if merr := writeMetrics(); merr != nil {
		log.Warn().Err(merr).Msg("failed to write metrics")
	}
	if code := report(err, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// report prints err unless the command already logged it, and returns the exit
// status
func report(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, ErrFailed) {
		fmt.Fprintln(w, "error:", err)
	}
	return exitCode(err)
}

func writeMetrics() error {
	path := ArgMetricsFile
	if path == "" && CurrentConfig != nil {
		path = CurrentConfig.MetricsFile
	}
	if path == "" {
		return nil
	}
	return metrics.WriteTextfile(path)
}

// ErrFailed is returned when signing failed and the failure was already
// logged
var ErrFailed = errors.New("one or more files failed")

func exitCode(err error) int {
	if errors.Is(err, ErrFailed) {
		return 2
	}
	return 1
}
