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

//go:build unix && !linux

package shmem

// No /dev/shm outside Linux; a MAP_SHARED file under /tmp gives the same
// cross-process semantics. /tmp rather than os.TempDir so that unrelated
// processes with different environments agree on the path.
const shmDir = "/tmp"
