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

// Package statsviz renders badvpn-client's per-peer status as a
// human-readable table, the shape `badvpnctl status` prints and the
// JSON shape badvpn-client's monitoring HTTP server exposes at
// /status. Tables go through tablewriter; the STATE column uses
// color.GreenString/RedString for up/down.
package statsviz

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// PeerStatus is one row of badvpnctl's status table, and the element
// type of the JSON array badvpn-client's /status endpoint serves.
type PeerStatus struct {
	Name              string    `json:"name"`
	Transport         string    `json:"transport"`
	Address           string    `json:"address"`
	Up                bool      `json:"up"`
	QueueDepth        int       `json:"queue_depth"`
	KeepaliveJitterNS float64   `json:"keepalive_jitter_ns"`
	LastKeepalive     time.Time `json:"last_keepalive"`
}

// Encode writes statuses as a JSON array, used by badvpn-client's
// /status handler.
func Encode(w io.Writer, statuses []PeerStatus) error {
	return json.NewEncoder(w).Encode(statuses)
}

// Decode reads a JSON array of PeerStatus, used by badvpnctl after
// fetching /status from a running badvpn-client.
func Decode(r io.Reader) ([]PeerStatus, error) {
	var statuses []PeerStatus
	if err := json.NewDecoder(r).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("statsviz: decode status: %w", err)
	}
	return statuses, nil
}

// Render writes statuses as a table to w: peer name, transport,
// address, a green "UP"/red "DOWN" liveness column, queue depth, and
// keepalive jitter.
func Render(w io.Writer, statuses []PeerStatus) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"PEER", "TRANSPORT", "ADDRESS", "STATE", "QUEUE", "JITTER", "LAST KEEPALIVE"})
	for _, s := range statuses {
		state := color.RedString("DOWN")
		if s.Up {
			state = color.GreenString("UP")
		}
		last := "-"
		if !s.LastKeepalive.IsZero() {
			last = s.LastKeepalive.Format(time.RFC3339)
		}
		table.Append([]string{
			s.Name,
			s.Transport,
			s.Address,
			state,
			fmt.Sprintf("%d", s.QueueDepth),
			fmt.Sprintf("%.1fus", s.KeepaliveJitterNS/1000),
			last,
		})
	}
	table.Render()
}
