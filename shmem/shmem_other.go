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

//go:build !unix && !windows

package shmem

import "errors"

var errUnsupported = errors.New("shmem: shared memory not supported on this platform")

type osMapping struct{}

func create(name string, size int, perm uint32) (*Mapping, error) {
	return nil, errUnsupported
}

func open(name string) (*Mapping, error) {
	return nil, errUnsupported
}

func (m *Mapping) close() error { return nil }

func unlink(name string) error { return errUnsupported }
