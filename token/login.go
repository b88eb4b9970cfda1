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

package token

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/lib/sigerrors"
)

// Key is a signer opened from a configured token
type Key interface {
	Signer
	// Public returns the public key, or nil if the backend can't tell
	Public() crypto.PublicKey
	// Certificate returns DER certificates stored with the key, if any
	Certificate() []byte
	Close() error
}

// OpenFunc opens the key described by kconf from the token tconf
type OpenFunc func(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, prompt passprompt.PasswordGetter) (Key, error)

// Openers maps token types to backends. Backends register themselves from
// init.
var Openers = make(map[string]OpenFunc)

// Login unlocks a token, using the configured PIN if there is one and
// otherwise the keyring or a prompt
func Login(tokenConf *config.TokenConfig, pinProvider passprompt.PasswordGetter, loginFunc passprompt.LoginFunc, keyringUser, initialPrompt string) error {
	if tokenConf.Pin != nil {
		ok, err := loginFunc(*tokenConf.Pin)
		if err != nil {
			return err
		} else if !ok {
			return sigerrors.PinIncorrectError{}
		}
		return nil
	}
	if initialPrompt == "" {
		initialPrompt = fmt.Sprintf("PIN for token %s: ", tokenConf.Name())
	}
	failPrefix := "Incorrect PIN\r\n"
	var keyringService string
	if tokenConf.UseKeyring {
		keyringService = "winsign"
	}
	err := passprompt.Login(loginFunc, pinProvider, keyringService, keyringUser, initialPrompt, failPrefix)
	if err == io.EOF {
		if pinProvider == nil {
			msg := "PIN required but none was provided"
			if tokenConf.UseKeyring {
				msg += "; log in interactively once to save it in the keyring"
			}
			return errors.New(msg)
		}
		return errors.New("aborted")
	}
	return err
}
