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

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestLayerDecodesHeaderThenEthernet(t *testing.T) {
	buf := EncodeHeader(nil, Header{Flags: FlagReceivingKeepalives, FromID: 5, NumPeerIDs: 1, DestID: 9})
	eth := make([]byte, 14)
	copy(eth[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(eth[6:12], []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
	eth[12], eth[13] = 0x08, 0x06 // ARP
	buf = append(buf, eth...)

	pkt := gopacket.NewPacket(buf, LayerTypeDataProto, gopacket.Default)

	dp := pkt.Layer(LayerTypeDataProto)
	require.NotNil(t, dp, "DataProto layer must decode")
	l := dp.(*Layer)
	require.Equal(t, uint16(5), l.FromID)
	require.Equal(t, uint16(9), l.DestID)
	require.Equal(t, byte(FlagReceivingKeepalives), l.Flags)

	require.NotNil(t, pkt.Layer(layers.LayerTypeEthernet),
		"the frame payload must decode as an Ethernet layer")
}

func TestLayerDecodesKeepaliveWithoutPayload(t *testing.T) {
	buf := EncodeHeader(nil, Header{FromID: 5, NumPeerIDs: 0})
	pkt := gopacket.NewPacket(buf, LayerTypeDataProto, gopacket.Default)

	dp := pkt.Layer(LayerTypeDataProto)
	require.NotNil(t, dp)
	require.Equal(t, uint16(0), dp.(*Layer).NumPeerIDs)
	require.Nil(t, pkt.Layer(layers.LayerTypeEthernet))
	require.Nil(t, pkt.ErrorLayer(), "a bare keepalive header must decode cleanly")
}

func TestLayerSerializeRoundTrip(t *testing.T) {
	l := &Layer{Header: Header{FromID: 7, NumPeerIDs: 1, DestID: 3}}
	sb := gopacket.NewSerializeBuffer()
	require.NoError(t, l.SerializeTo(sb, gopacket.SerializeOptions{}))

	h, n, err := DecodeHeader(sb.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(sb.Bytes()), n)
	require.Equal(t, l.Header, h)
}
