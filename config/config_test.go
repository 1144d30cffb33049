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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/facebook/badvpn-go/config"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAppliesDefaultsAndParsesPeers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
iface: tap0
peers:
  - name: east
    dest_id: 1
    transport: udp
    connect: 10.0.0.1:1194
    password: sekritpw
`)

	c, err := config.Read(path)
	require.NoError(t, err)
	require.Equal(t, "tap0", c.Iface)
	require.Equal(t, 1500, c.FrameMTU)
	require.Len(t, c.Peers, 1)
	require.NotZero(t, c.Peers[0].KeepaliveInterval)
	require.NotZero(t, c.Peers[0].ToleranceInterval)
}

func TestReadRejectsPeerWithBothListenAndConnect(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
iface: tap0
peers:
  - name: east
    transport: udp
    listen: 0.0.0.0:1194
    connect: 10.0.0.1:1194
    password: sekritpw
`)
	_, err := config.Read(path)
	require.Error(t, err)
}

func TestReadMergesLegacyPasswordsFile(t *testing.T) {
	dir := t.TempDir()
	pwPath := writeFile(t, dir, "passwords.ini", "[east]\npassword = sekritpw\n")
	path := writeFile(t, dir, "config.yaml", `
iface: tap0
passwords_file: `+pwPath+`
peers:
  - name: east
    transport: udp
    connect: 10.0.0.1:1194
`)
	c, err := config.Read(path)
	require.NoError(t, err)
	require.Equal(t, "sekritpw", c.Peers[0].Password)
}

func TestResolvePasswordFromFile(t *testing.T) {
	dir := t.TempDir()
	pwFile := writeFile(t, dir, "east.pw", "01234567")
	p := config.PeerConfig{Name: "east", PasswordFile: pwFile}
	pw, err := p.ResolvePassword()
	require.NoError(t, err)
	require.Equal(t, [8]byte{'0', '1', '2', '3', '4', '5', '6', '7'}, pw)
}
