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
	"errors"
	"fmt"
	"os"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/osslsigncode"
	"github.com/sassoftware/winsign/lib/passprompt"
)

// InitConfig loads the configuration file. Without --config the default path
// is tried, and if nothing is there an empty configuration is used.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	path := ArgConfig
	usedDefault := false
	if path == "" {
		path = config.DefaultConfig()
		usedDefault = true
	}
	if path == "" {
		CurrentConfig = config.New()
		return nil
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		if usedDefault && errors.Is(err, os.ErrNotExist) {
			CurrentConfig = config.New()
			return nil
		}
		return err
	}
	CurrentConfig = cfg
	return nil
}

// Tool returns the signing utility as configured
func Tool() (osslsigncode.Tool, error) {
	cmdline, err := CurrentConfig.Tool.GetCommand()
	if err != nil {
		return osslsigncode.Tool{}, fmt.Errorf("tool: %w", err)
	}
	return osslsigncode.Tool{
		Command: cmdline,
		Timeout: CurrentConfig.Tool.GetTimeout(),
	}, nil
}

// Prompt returns the password source for PINs and PKCS#12 bundles
func Prompt() passprompt.PasswordGetter {
	return passprompt.PasswordPrompt{}
}
