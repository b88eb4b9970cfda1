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
	"crypto"

	"github.com/spf13/pflag"

	"github.com/sassoftware/winsign/lib/x509tools"
)

var ArgDigest string

// AddDigestFlag adds -d to select the digest algorithm
func AddDigestFlag(flags *pflag.FlagSet) {
	flags.StringVarP(&ArgDigest, "digest", "d", "", "Digest algorithm: "+x509tools.SupportedHashes()+" (default from config, or sha256)")
}

func GetDigest() (crypto.Hash, error) {
	name := ArgDigest
	if name == "" && CurrentConfig != nil {
		name = CurrentConfig.Defaults.Digest
	}
	if name == "" {
		name = "sha256"
	}
	return x509tools.HashByName(name)
}
