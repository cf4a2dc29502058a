// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/zeebo/blake3"

	"github.com/penny-vault/pv-optimizer/dataframe"
)

// Fingerprint returns a blake3 hash of the dates, column names and values of df plus any
// extra strings (e.g. estimator settings). Equal inputs give equal fingerprints.
func Fingerprint(df *dataframe.DataFrame, extra ...string) string {
	h := blake3.New()
	buf := make([]byte, 8)

	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf, uint64(len(s)))
		_, _ = h.Write(buf)
		_, _ = h.Write([]byte(s))
	}

	for _, dt := range df.Dates {
		binary.LittleEndian.PutUint64(buf, uint64(dt.UnixNano()))
		_, _ = h.Write(buf)
	}

	for idx, name := range df.ColNames {
		writeString(name)
		for _, v := range df.Vals[idx] {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			_, _ = h.Write(buf)
		}
	}

	for _, s := range extra {
		writeString(s)
	}

	return hex.EncodeToString(h.Sum(nil))
}
