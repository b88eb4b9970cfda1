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

package config

import (
	"fmt"
	"time"

	"github.com/mattn/go-shellwords"
)

func (keyConf *KeyConfig) Name() string {
	return keyConf.name
}

// TokenConfig returns the token section this key refers to
func (keyConf *KeyConfig) TokenConfig() *TokenConfig {
	return keyConf.token
}

func (keyConf *KeyConfig) SetToken(tokenConf *TokenConfig) {
	keyConf.Token = tokenConf.name
	keyConf.token = tokenConf
}

// GetCommand splits the tool command line into words. An empty command means
// the default.
func (toolConf *ToolConfig) GetCommand() ([]string, error) {
	if toolConf.Command == "" {
		return nil, nil
	}
	words, err := shellwords.Parse(toolConf.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tool command line: %w", err)
	} else if len(words) == 0 {
		return nil, fmt.Errorf("tool command line %q is empty", toolConf.Command)
	}
	return words, nil
}

// GetTimeout returns the limit for a single tool invocation, or zero for none
func (toolConf *ToolConfig) GetTimeout() time.Duration {
	return time.Second * time.Duration(toolConf.Timeout)
}
