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
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeDataProto is registered so a captured or replayed DataProto
// header can be decoded and printed by gopacket tooling, enabling the
// optional `-trace-layer2` debug dump a badvpn-client peer can turn
// on to print every frame's DataProto header alongside its decoded
// Ethernet payload.
var LayerTypeDataProto = gopacket.RegisterLayerType(
	1912,
	gopacket.LayerTypeMetadata{Name: "DataProto", Decoder: gopacket.DecodeFunc(decodeDataProtoLayer)},
)

// Layer is a gopacket.Layer/SerializableLayer/DecodingLayer wrapper
// around Header, letting a DataProto frame be threaded through
// gopacket's decode/serialize pipeline alongside an Ethernet payload
// layer for debug tooling.
type Layer struct {
	layers.BaseLayer
	Header
}

// LayerType implements gopacket.Layer.
func (l *Layer) LayerType() gopacket.LayerType { return LayerTypeDataProto }

// DecodeFromBytes implements gopacket.DecodingLayer.
func (l *Layer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	h, n, err := DecodeHeader(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	l.Header = h
	l.BaseLayer = layers.BaseLayer{Contents: data[:n], Payload: data[n:]}
	return nil
}

// CanDecode implements gopacket.DecodingLayer.
func (l *Layer) CanDecode() gopacket.LayerClass { return LayerTypeDataProto }

// NextLayerType implements gopacket.DecodingLayer: the frame payload
// that follows a DataProto header is a raw link-layer frame, decoded
// by gopacket's own layers.Ethernet. A keepalive carries no payload
// and ends the decode.
func (l *Layer) NextLayerType() gopacket.LayerType {
	if len(l.Payload) == 0 {
		return gopacket.LayerTypePayload
	}
	return layers.LayerTypeEthernet
}

// SerializeTo implements gopacket.SerializableLayer.
func (l *Layer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	encoded := EncodeHeader(nil, l.Header)
	bytes, err := b.PrependBytes(len(encoded))
	if err != nil {
		return err
	}
	copy(bytes, encoded)
	return nil
}

func decodeDataProtoLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &Layer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return p.NextDecoder(l.NextLayerType())
}
