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
	"encoding/binary"
	"fmt"
	"unsafe"
)

var nativeOrder binary.ByteOrder

func init() {
	var i uint32 = 0x1
	bs := (*[4]byte)(unsafe.Pointer(&i))
	if bs[0] == 0 {
		nativeOrder = binary.BigEndian
	} else {
		nativeOrder = binary.LittleEndian
	}
}

// parse a CK_ULONG attribute. Providers disagree on its width so accept any
// of the usual sizes.
func getUlong(buf []byte) (uint, error) {
	switch len(buf) {
	case 1:
		return uint(buf[0]), nil
	case 2:
		return uint(nativeOrder.Uint16(buf)), nil
	case 4:
		return uint(nativeOrder.Uint32(buf)), nil
	case 8:
		return uint(nativeOrder.Uint64(buf)), nil
	}
	return 0, fmt.Errorf("unable to parse value as unsigned integer: %x", buf)
}
