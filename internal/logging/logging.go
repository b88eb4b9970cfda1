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

// Package logging configures the global zerolog logger for the command line
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00" // RFC3339 with 3 decimal places, padded

// Setup initializes zerolog with reasonable defaults. An empty logFile writes
// readable text to stderr, "-" writes JSON to stderr, and anything else
// appends JSON to that file.
func Setup(levelName, logFile string) error {
	return setup(levelName, logFile, os.Stderr)
}

func setup(levelName, logFile string, stderr io.Writer) error {
	zerolog.TimeFieldFormat = rfc3339Milli
	zerolog.DurationFieldInteger = true
	var out io.Writer
	switch logFile {
	case "-":
		out = stderr
	case "":
		out = zerolog.ConsoleWriter{
			Out:        stderr,
			TimeFormat: "15:04:05",
		}
	default:
		w, err := newFileWriter(logFile)
		if err != nil {
			return fmt.Errorf("log_file: %w", err)
		}
		out = w
	}
	if levelName == "" {
		levelName = zerolog.InfoLevel.String()
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	// loggers pulled from a context without one attached go to the same place
	zerolog.DefaultContextLogger = &log.Logger
	// pass stdlib logger through
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
	return nil
}
