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

package dataproto

// keepaliveSource is a PacketRecvInterface that, on every Recv,
// synchronously writes one zero-payload DataProto keepalive header
// (num_peer_ids = 0) into the caller's buffer and calls done. It sits
// behind a pipe.RecvBlocker inside Dest so that a keepalive is only
// ever produced when something releases the blocker.
type keepaliveSource struct {
	fromID uint16
	doneFn func(int)
}

func newKeepaliveSource(fromID uint16) *keepaliveSource {
	return &keepaliveSource{fromID: fromID}
}

func (k *keepaliveSource) MTU() int { return HeaderLen }

func (k *keepaliveSource) SetDoneHandler(done func(int)) { k.doneFn = done }

func (k *keepaliveSource) Recv(buf []byte) {
	n := len(EncodeHeader(buf[:0], Header{FromID: k.fromID, NumPeerIDs: 0}))
	if k.doneFn != nil {
		k.doneFn(n)
	}
}
