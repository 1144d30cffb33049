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

// Package iface defines the pipeline contracts pipelines in this
// module are composed from: PacketPass/PacketRecv for single-packet
// async exchange, StreamPass/StreamRecv for partial-progress byte
// exchange. These are contracts, not classes; every
// concrete node in pipe/, fragment/, dataproto/ and peerio/ implements
// one or more of them.
package iface

// PacketPassInterface is an async single-packet push sink. A sender
// calls Send with a buffer it owns for the duration of the call;
// exactly one of the following eventually happens: the sink calls the
// done handler (installed via SetDoneHandler) releasing the sender to
// send again, or — only if SupportsCancel reports true — the sender
// calls Cancel and the sink immediately abandons the packet without
// ever calling done.
//
// At most one packet may be in flight at a time; Send must not be
// called again until done fires (or Cancel succeeds).
type PacketPassInterface interface {
	// MTU returns the maximum accepted packet length.
	MTU() int
	// Send hands data (len(data) <= MTU()) to the sink. The sink may
	// call the done handler synchronously from within Send, or defer
	// it to a later reactor dispatch.
	Send(data []byte)
	// SetDoneHandler installs the callback invoked when the
	// in-flight Send completes. Must be called before the first Send.
	SetDoneHandler(func())
	// SupportsCancel reports whether Cancel may be called on this
	// sink. Calling Cancel on a sink that returns false is a
	// programmer error.
	SupportsCancel() bool
	// Cancel synchronously abandons the in-flight packet. done will
	// never fire for it. Only valid when SupportsCancel() is true and
	// a Send is currently outstanding.
	Cancel()
}

// PacketRecvInterface is an async single-packet pull source. A
// consumer calls Recv with a buffer of at least MTU() capacity;
// exactly one later call to the done handler with 0 <= len <= MTU()
// reports how much was written into it. At most one Recv may be
// outstanding at a time.
type PacketRecvInterface interface {
	MTU() int
	// Recv requests one packet into buf (cap(buf) >= MTU()).
	Recv(buf []byte)
	// SetDoneHandler installs the callback invoked with the number of
	// bytes written into the buffer passed to the most recent Recv.
	SetDoneHandler(func(n int))
}
