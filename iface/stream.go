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

package iface

// StreamPassInterface is the stream analogue of PacketPassInterface:
// partial progress is allowed. done(n) reports 1 <= n <= requested
// bytes consumed; there is no zero-length success on the pass side.
type StreamPassInterface interface {
	Send(data []byte)
	SetDoneHandler(func(n int))
}

// StreamRecvInterface is the stream analogue of PacketRecvInterface.
// done(n) reports bytes written into the buffer passed to Recv:
// 1 <= n <= requested on success, 0 to signal an orderly close. A
// consumer that needs more than one done(n) worth of data must loop.
type StreamRecvInterface interface {
	Recv(buf []byte)
	SetDoneHandler(func(n int))
}
