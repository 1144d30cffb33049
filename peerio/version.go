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

package peerio

import (
	"fmt"

	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

// MinProtocolVersion is the oldest peer protocol_version this build
// still interoperates with. StreamPeerIO/DatagramPeerIO setup neither
// sends nor checks it; it is the value CheckProtocolVersion callers
// compare against.
const MinProtocolVersion = "1.0.0"

// CheckProtocolVersion compares a peer-advertised protocol_version
// string against minSupported and logs (never fails the connection)
// when the peer is older: version skew is informational, not fatal.
func CheckProtocolVersion(peerVersion, minSupported string) error {
	peer, err := version.NewVersion(peerVersion)
	if err != nil {
		return fmt.Errorf("peerio: parse peer protocol_version %q: %w", peerVersion, err)
	}
	min, err := version.NewVersion(minSupported)
	if err != nil {
		return fmt.Errorf("peerio: parse minimum protocol_version %q: %w", minSupported, err)
	}
	if peer.LessThan(min) {
		log.Warningf("peerio: peer protocol_version %s is older than minimum supported %s", peer, min)
	}
	return nil
}
