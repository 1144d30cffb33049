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

package iface_test

import (
	"testing"

	"github.com/facebook/badvpn-go/iface"
	"go.uber.org/mock/gomock"
)

// TestMockPacketPassRecordsSendThenCancel exercises the generated mock
// directly, matching the exactly-one-of-done-or-cancel contract: a
// sender that issues Send and, because the sink
// declares cancel support, immediately Cancels, must see both calls
// observed in order and nothing else.
func TestMockPacketPassRecordsSendThenCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := iface.NewMockPacketPassInterface(ctrl)

	gomock.InOrder(
		sink.EXPECT().SupportsCancel().Return(true),
		sink.EXPECT().Send([]byte("hello")),
		sink.EXPECT().Cancel(),
	)

	if !sink.SupportsCancel() {
		t.Fatal("expected cancel support")
	}
	sink.Send([]byte("hello"))
	sink.Cancel()
}
