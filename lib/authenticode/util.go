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

package authenticode

import (
	"bytes"
	"encoding/binary"
	"io"
)

// read bytes at an offset and return a byte slice
func readNAt(r io.ReaderAt, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := r.ReadAt(buf, offset)
	return buf, err
}

// read a binary structure at an offset. If the structure is bigger than size,
// the remainder is zero-filled.
func readBinaryAt(r io.ReaderAt, offset int64, size int64, value interface{}) error {
	var reader io.Reader = io.NewSectionReader(r, offset, size)
	if empty := int64(binary.Size(value)) - size; empty > 0 {
		reader = io.MultiReader(reader, bytes.NewReader(make([]byte, empty)))
	}
	return binary.Read(reader, binary.LittleEndian, value)
}
