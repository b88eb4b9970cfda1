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

// Package autograph signs digests with a Mozilla Autograph service, using
// Hawk request authentication.
package autograph

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.mozilla.org/hawk"

	"github.com/sassoftware/winsign/config"
	"github.com/sassoftware/winsign/internal/httperror"
	"github.com/sassoftware/winsign/lib/passprompt"
	"github.com/sassoftware/winsign/token"
)

const tokenType = "autograph"

type signRequest struct {
	Input string `json:"input"`
	KeyID string `json:"keyid,omitempty"`
}

type signResponse struct {
	Ref       string `json:"ref"`
	Type      string `json:"type"`
	SignerID  string `json:"signer_id"`
	Signature string `json:"signature"`
}

// Client is a connection to one Autograph signer
type Client struct {
	URL    string
	User   string
	Secret string
	KeyID  string
	HTTP   *http.Client
}

func init() {
	token.Openers[tokenType] = open
}

func open(ctx context.Context, tconf *config.TokenConfig, kconf *config.KeyConfig, prompt passprompt.PasswordGetter) (token.Key, error) {
	c := &Client{
		URL:    tconf.URL,
		User:   tconf.User,
		Secret: tconf.Secret,
		KeyID:  kconf.ID,
		HTTP:   &http.Client{Timeout: tconf.GetTimeout()},
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("token %q: %w", tconf.Name(), err)
	}
	return c, nil
}

func (c *Client) validate() error {
	switch {
	case c.URL == "":
		return errors.New("autograph url is required")
	case c.User == "" || c.Secret == "":
		return errors.New("autograph user and secret are required")
	}
	return nil
}

// SignDigest asks the service to sign a precomputed digest. The service picks
// the signature scheme from the key, so hash is only used for logging by the
// caller.
func (c *Client) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal([]signRequest{{
		Input: base64.StdEncoding.EncodeToString(digest),
		KeyID: c.KeyID,
	}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.URL, "/")+"/sign/hash", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())
	auth := hawk.NewRequestAuth(req, &hawk.Credentials{
		ID:   c.User,
		Key:  c.Secret,
		Hash: sha256.New,
	}, 0)
	payloadHash := auth.PayloadHash("application/json")
	payloadHash.Write(body)
	auth.SetHash(payloadHash)
	req.Header.Set("Authorization", auth.RequestHeader())

	cli := c.HTTP
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, httperror.FromResponse(resp)
	}
	defer resp.Body.Close()
	var results []signResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding autograph response: %w", err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 signature from autograph, got %d", len(results))
	}
	sig, err := base64.StdEncoding.DecodeString(results[0].Signature)
	if err != nil {
		return nil, fmt.Errorf("decoding autograph signature: %w", err)
	}
	return sig, nil
}

// Public returns nil; the public key comes from the configured certificate
func (c *Client) Public() crypto.PublicKey {
	return nil
}

func (c *Client) Certificate() []byte {
	return nil
}

func (c *Client) Close() error {
	return nil
}
