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
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTokenTimeout = 60 * time.Second
	defaultDigest       = "sha256"
)

type TokenConfig struct {
	Type       string  `yaml:"type"`        // file, pkcs11, aws, gcloud, azure or autograph
	Provider   string  `yaml:"provider"`    // Path to PKCS#11 provider module
	Label      string  `yaml:"label"`       // Select a PKCS#11 token by label
	Serial     string  `yaml:"serial"`      // Select a PKCS#11 token by serial number
	Pin        *string `yaml:"pin"`         // PIN to use, otherwise will be prompted (optional)
	UseKeyring bool    `yaml:"use_keyring"` // Read and save the PIN in the OS keyring
	Timeout    int     `yaml:"timeout"`     // Seconds to wait for a signature
	Retries    int     `yaml:"retries"`     // Retry temporary failures this many times
	RateLimit  float64 `yaml:"rate_limit"`  // Signatures per second
	RateBurst  int     `yaml:"rate_burst"`

	// Autograph
	URL    string `yaml:"url"`
	User   string `yaml:"user"`
	Secret string `yaml:"secret"`

	name string
}

type KeyConfig struct {
	Token             string   `yaml:"token"`              // Token section to use for this key (required)
	Label             string   `yaml:"label"`              // Select a PKCS#11 key by label
	ID                string   `yaml:"id"`                 // Key ID, ARN or resource name, depending on token type
	KeyFile           string   `yaml:"keyfile"`            // Private key file, for file tokens
	IsPkcs12          bool     `yaml:"pkcs12"`             // KeyFile is a PKCS#12 bundle
	X509Certificate   string   `yaml:"x509certificate"`    // Path to certificate chain for this key
	CrossCertificates []string `yaml:"cross_certificates"` // Appended to the chain and passed to the dummy signing step

	name  string
	token *TokenConfig
}

type ToolConfig struct {
	Command string `yaml:"command"` // osslsigncode command line
	Timeout int    `yaml:"timeout"` // Seconds per invocation
}

type DefaultsConfig struct {
	Digest string `yaml:"digest"`
}

type Config struct {
	Tokens   map[string]*TokenConfig `yaml:"tokens"`
	Keys     map[string]*KeyConfig   `yaml:"keys"`
	Tool     ToolConfig              `yaml:"tool"`
	Defaults DefaultsConfig          `yaml:"defaults"`

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsFile string `yaml:"metrics_file"`

	path string
}

// ReadFile loads a configuration file and checks that every key refers to a
// defined token
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// New returns an empty configuration with defaults filled in
func New() *Config {
	config := new(Config)
	_ = config.Normalize()
	return config
}

// Normalize fills in defaults and links keys to their tokens
func (config *Config) Normalize() error {
	if config.Defaults.Digest == "" {
		config.Defaults.Digest = defaultDigest
	}
	for tokenName, tokenConf := range config.Tokens {
		if tokenConf == nil {
			tokenConf = new(TokenConfig)
			config.Tokens[tokenName] = tokenConf
		}
		tokenConf.name = tokenName
		if tokenConf.Type == "" {
			return fmt.Errorf("token %q does not specify required value 'type'", tokenName)
		}
	}
	for keyName, keyConf := range config.Keys {
		if keyConf == nil {
			return fmt.Errorf("key %q is empty", keyName)
		}
		keyConf.name = keyName
		if keyConf.Token == "" {
			return fmt.Errorf("key %q does not specify required value 'token'", keyName)
		}
		tokenConf, ok := config.Tokens[keyConf.Token]
		if !ok {
			return fmt.Errorf("token %q not found (key %q)", keyConf.Token, keyName)
		}
		keyConf.token = tokenConf
	}
	return nil
}

func (config *Config) Path() string {
	return config.path
}

func (config *Config) GetToken(tokenName string) (*TokenConfig, error) {
	if config.Tokens == nil {
		return nil, errors.New("no tokens defined in configuration")
	}
	tokenConf, ok := config.Tokens[tokenName]
	if !ok {
		return nil, fmt.Errorf("token %q not found in configuration", tokenName)
	}
	return tokenConf, nil
}

func (config *Config) GetKey(keyName string) (*KeyConfig, error) {
	if config.Keys == nil {
		return nil, errors.New("no keys defined in configuration")
	}
	keyConf, ok := config.Keys[keyName]
	if !ok {
		return nil, fmt.Errorf("key %q not found in configuration", keyName)
	}
	return keyConf, nil
}

func (tokenConf *TokenConfig) Name() string {
	return tokenConf.name
}

// GetTimeout returns how long to wait for one signing operation
func (tokenConf *TokenConfig) GetTimeout() time.Duration {
	if tokenConf.Timeout > 0 {
		return time.Second * time.Duration(tokenConf.Timeout)
	}
	return defaultTokenTimeout
}
