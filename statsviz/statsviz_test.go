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

package statsviz

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []PeerStatus{
		{Name: "office", Transport: "udp", Address: "10.0.0.1:1194", Up: true, QueueDepth: 3, KeepaliveJitterNS: 1500, LastKeepalive: time.Unix(1700000000, 0).UTC()},
		{Name: "backup", Transport: "tcp", Address: "10.0.0.2:1195", Up: false},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestRenderDoesNotPanicOnEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NotPanics(t, func() { Render(&buf, nil) })
}

func TestRenderIncludesPeerNames(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, []PeerStatus{
		{Name: "office", Transport: "udp", Address: "10.0.0.1:1194", Up: true},
	})
	require.Contains(t, buf.String(), "office")
}
