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

package spproto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// OverheadLen is the fixed per-packet overhead SPProto adds: an
// 8-byte big-endian sequence number used as part of the AEAD nonce,
// followed by the cipher's own authentication tag (16 bytes for
// AES-128-GCM).
const (
	SeqLen      = 8
	TagLen      = 16
	OverheadLen = SeqLen + TagLen
)

// KeyLen is the AES-128 key size SPProto uses.
const KeyLen = 16

// RotationWarningThreshold is the absolute sequence number at which an
// encoder first calls its rotation-warning callback, giving the
// control plane time to negotiate a new key long before the 2^64-1
// counter is fully spent.
const RotationWarningThreshold uint64 = 1 << 48

// aeadFor builds an AES-128-GCM AEAD from a raw key.
func aeadFor(key [KeyLen]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("spproto: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("spproto: cipher.NewGCM: %w", err)
	}
	return aead, nil
}

func nonceFor(seq uint64) []byte {
	var n [12]byte // GCM standard nonce size; top 4 bytes left zero
	for i := 0; i < SeqLen; i++ {
		n[11-i] = byte(seq >> (8 * i))
	}
	return n[:]
}
