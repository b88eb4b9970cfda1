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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/winsign/internal/httperror"
)

const defaultMaxElapsed = 2 * time.Minute

type retrySigner struct {
	signer     Signer
	retries    uint64
	maxElapsed time.Duration
	// zero means the backoff package default
	initialInterval time.Duration
}

// WithRetry wraps a signer so that temporary failures, as judged by
// httperror.Temporary, are retried with exponential backoff. Permanent
// failures are returned immediately. A maxElapsed of zero means two minutes.
func WithRetry(s Signer, retries uint64, maxElapsed time.Duration) Signer {
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	return &retrySigner{signer: s, retries: retries, maxElapsed: maxElapsed}
}

func (r *retrySigner) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	var sig []byte
	attempt := 0
	op := func() error {
		attempt++
		var err error
		sig, err = r.signer.SignDigest(ctx, digest, hash)
		if err != nil && !httperror.Temporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = r.maxElapsed
	if r.initialInterval > 0 {
		eb.InitialInterval = r.initialInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.retries), ctx)
	notify := func(err error, delay time.Duration) {
		log.Warn().
			Int("attempt", attempt).
			Uint64("max_retries", r.retries).
			AnErr("last_error", err).
			Dur("delay", delay).
			Msg("signer error; retrying")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return sig, nil
}

func (r *retrySigner) Close() error {
	return Close(r.signer)
}
