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

package procutil

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

const waitDelay = 5 * time.Second

type Command struct {
	Proc   *exec.Cmd
	Output string

	ctx    context.Context
	cancel context.CancelFunc
	stdio  *bytes.Buffer
}

// Prepare to launch a subprocess with the given command-line. The process will
// be terminated when ctx is cancelled or timeout elapses. A timeout of zero or
// less means no limit other than ctx.
func CommandContext(ctx context.Context, cmdline []string, timeout time.Duration) *Command {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	proc := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	stdio := new(bytes.Buffer)
	proc.Stdout = stdio
	proc.Stderr = stdio
	// don't wait forever on grandchildren holding the output pipe open
	proc.WaitDelay = waitDelay
	return &Command{
		ctx:    ctx,
		Proc:   proc,
		stdio:  stdio,
		cancel: cancel,
	}
}

// Run the subprocess and wait for it to complete. Combined stdout and stderr
// are stored in Output whether or not it succeeded.
func (c *Command) Run() error {
	defer c.cancel()
	err := c.Proc.Run()
	c.Output = c.stdio.String()
	if err != nil {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
			return err
		}
	}
	return nil
}

// ExitCode returns the exit status of a command that ran and failed, or -1
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (c *Command) FormatCmdline() string {
	words := make([]string, len(c.Proc.Args))
	for i, word := range c.Proc.Args {
		if strings.Contains(word, " ") {
			word = "\"" + word + "\""
		}
		words[i] = word
	}
	return strings.Join(words, " ")
}
