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

// Package passprompt obtains PINs and passwords for tokens and key files,
// either interactively or from the OS keyring.
package passprompt

import (
	"errors"
	"io"
	"os"

	"github.com/howeyc/gopass"
	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

type PasswordGetter interface {
	// Ask for a password. An empty result means the user gave up.
	GetPasswd(prompt string) (string, error)
}

// LoginFunc attempts a login with the given PIN. It returns false if the PIN
// was wrong and an error for anything else.
type LoginFunc func(string) (bool, error)

// PasswordPrompt reads from the controlling terminal without echo
type PasswordPrompt struct{}

func (PasswordPrompt) GetPasswd(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required but stdin is not a terminal")
	}
	passwd, err := gopass.GetPasswdPrompt(prompt, false, os.Stdin, os.Stderr)
	if err == gopass.ErrInterrupted {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return string(passwd), nil
}

// Login tries a password from the keyring if keyringService is set, then
// prompts with getter until loginFunc accepts one. A password that worked
// after prompting is saved back to the keyring. io.EOF is returned if getter
// is nil or the user enters nothing.
func Login(loginFunc LoginFunc, getter PasswordGetter, keyringService, keyringUser, initialPrompt, failPrefix string) error {
	if keyringService != "" {
		passwd, err := keyring.Get(keyringService, keyringUser)
		switch {
		case err == nil:
			ok, err := loginFunc(passwd)
			if err != nil {
				return err
			} else if ok {
				return nil
			}
			log.Warn().Str("user", keyringUser).Msg("password from keyring was not accepted")
		case errors.Is(err, keyring.ErrNotFound):
		default:
			log.Warn().Err(err).Msg("keyring lookup failed")
		}
	}
	if getter == nil {
		return io.EOF
	}
	prompt := initialPrompt
	for {
		passwd, err := getter.GetPasswd(prompt)
		if err != nil {
			return err
		} else if passwd == "" {
			return io.EOF
		}
		ok, err := loginFunc(passwd)
		if err != nil {
			return err
		} else if ok {
			if keyringService != "" {
				if err := keyring.Set(keyringService, keyringUser, passwd); err != nil {
					log.Warn().Err(err).Msg("failed to save password in keyring")
				}
			}
			return nil
		}
		prompt = failPrefix + initialPrompt
	}
}
