//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package p11token

import (
	"github.com/miekg/pkcs11"
)

// find a certificate object sharing the private key's CKA_ID. Caller must
// hold the token mutex.
func (key *Key) findCertificate() ([]byte, error) {
	keyID := key.token.getAttribute(key.priv, pkcs11.CKA_ID)
	if len(keyID) == 0 {
		return nil, nil
	}
	attrs := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}
	objects, err := key.token.findObject(attrs)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	return key.token.getAttribute(objects[0], pkcs11.CKA_VALUE), nil
}
