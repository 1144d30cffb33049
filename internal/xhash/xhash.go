/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package xhash wraps cespare/xxhash for the small set of fast,
// explicit hashes the dataplane needs over flow keys that would
// otherwise ride Go's generic map hash. FrameID keys FragmentProto's
// by-frame-id reassembly index; FlowKey hashes (source, dest) pairs
// and has no caller in this module.
package xhash

import "github.com/cespare/xxhash"

// FrameID hashes a FragmentProto frame identifier for use as a bucket
// key in the assembler's by-id lookup structure (fragment.Assembler).
func FrameID(id uint16) uint64 {
	var b [2]byte
	b[0] = byte(id)
	b[1] = byte(id >> 8)
	return xxhash.Sum64(b[:])
}

// FlowKey hashes a (sourceID, destID) pair for use as a bucket key in
// a peer-routed fair-queue flow table.
func FlowKey(sourceID, destID uint32) uint64 {
	var b [8]byte
	b[0] = byte(sourceID)
	b[1] = byte(sourceID >> 8)
	b[2] = byte(sourceID >> 16)
	b[3] = byte(sourceID >> 24)
	b[4] = byte(destID)
	b[5] = byte(destID >> 8)
	b[6] = byte(destID >> 16)
	b[7] = byte(destID >> 24)
	return xxhash.Sum64(b[:])
}
