/*
 * Copyright 2025 Kaze Authors
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

package kaze

import "github.com/bytedance/gopkg/util/xxhash3"

// DefaultIdent derives a creator ident from the channel name. The ident is
// opaque to kaze itself; this just gives callers a stable default so both
// sides can sanity-check they are talking about the same channel.
func DefaultIdent(name string) uint32 {
	h := xxhash3.HashString(name)
	return uint32(h) ^ uint32(h>>32)
}
