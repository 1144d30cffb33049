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

// Package config loads badvpn-client's YAML configuration: a struct
// with yaml: tags, defaults set before unmarshal, os.ReadFile +
// yaml.Unmarshal. A secondary go-ini loader covers a legacy flat
// passwords.ini file for sites migrating off hand-rolled password
// files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-ini/ini"
	yaml "gopkg.in/yaml.v2"
)

// PeerConfig describes one configured peer connection: either a
// listening (server) or connecting (client) DataProto/SPProto/
// PacketProto endpoint.
type PeerConfig struct {
	Name   string `yaml:"name"`
	DestID uint16 `yaml:"dest_id"`

	// Transport selects "udp" (DatagramPeerIO) or "tcp" (StreamPeerIO).
	Transport string `yaml:"transport"`
	// Listen, if set, makes this peer a listener; Connect, if set,
	// makes it a dialer. Exactly one must be non-empty.
	Listen  string `yaml:"listen"`
	Connect string `yaml:"connect"`

	// Password authenticates the connection.
	// PasswordFile, if set, is read instead of embedding the secret in
	// a repo-tracked file in cleartext.
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`

	UseTLS     bool   `yaml:"tls"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
	PinnedCert string `yaml:"tls_pinned_cert"`

	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ToleranceInterval time.Duration `yaml:"tolerance_interval"`

	DSCP int `yaml:"dscp"`
}

// Config is badvpn-client's top-level configuration.
type Config struct {
	// LocalID is this instance's own peer id, used as from_id on every
	// outbound DataProto header.
	LocalID        uint16 `yaml:"local_id"`
	Iface          string `yaml:"iface"`
	FrameMTU       int    `yaml:"frame_mtu"`
	MonitoringPort int    `yaml:"monitoring_port"`
	LogLevel       string `yaml:"log_level"`

	NumReassemblyFrames int           `yaml:"num_reassembly_frames"`
	NumReassemblyChunks int           `yaml:"num_reassembly_chunks"`
	DisassemblyLatency  time.Duration `yaml:"disassembly_latency"`

	MetricsAggregationWindow time.Duration `yaml:"metrics_aggregation_window"`

	// RouteFilter is an optional internal/filter expression evaluated
	// per outbound frame.
	RouteFilter string `yaml:"route_filter"`

	// PasswordsFile, if set, is a legacy go-ini passwords file loaded
	// alongside Peers and merged in by peer name.
	PasswordsFile string `yaml:"passwords_file"`

	Peers []PeerConfig `yaml:"peers"`
}

const (
	defaultKeepaliveInterval  = 15 * time.Second
	defaultToleranceInterval  = 45 * time.Second
	defaultMetricsWindow      = 60 * time.Second
	defaultReassemblyFrames   = 32
	defaultReassemblyChunks   = 16
	defaultDisassemblyLatency = 10 * time.Millisecond
)

// Read loads and validates a Config from path, with defaults set
// before unmarshal so a YAML document only needs to override what it
// cares about.
func Read(path string) (*Config, error) {
	c := &Config{
		FrameMTU:                 1500,
		NumReassemblyFrames:      defaultReassemblyFrames,
		NumReassemblyChunks:      defaultReassemblyChunks,
		DisassemblyLatency:       defaultDisassemblyLatency,
		MetricsAggregationWindow: defaultMetricsWindow,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for i := range c.Peers {
		if c.Peers[i].KeepaliveInterval == 0 {
			c.Peers[i].KeepaliveInterval = defaultKeepaliveInterval
		}
		if c.Peers[i].ToleranceInterval == 0 {
			c.Peers[i].ToleranceInterval = defaultToleranceInterval
		}
	}
	if c.PasswordsFile != "" {
		if err := c.mergeLegacyPasswords(c.PasswordsFile); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// mergeLegacyPasswords loads a flat `[peer-name]\npassword = ...`
// go-ini file and fills in Password for any peer whose YAML entry
// left it (and PasswordFile) empty, the migration path for sites
// moving off hand-rolled password files.
func (c *Config) mergeLegacyPasswords(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("config: load passwords_file %s: %w", path, err)
	}
	for i := range c.Peers {
		p := &c.Peers[i]
		if p.Password != "" || p.PasswordFile != "" {
			continue
		}
		sec, err := f.GetSection(p.Name)
		if err != nil {
			continue
		}
		key, err := sec.GetKey("password")
		if err != nil {
			continue
		}
		p.Password = key.String()
	}
	return nil
}

// Validate checks structural invariants Read cannot express as zero
// values: every peer must have a name, a transport, and exactly one
// of Listen/Connect.
func (c *Config) Validate() error {
	if c.Iface == "" {
		return fmt.Errorf("config: iface must be set")
	}
	seen := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.Name == "" {
			return fmt.Errorf("config: peer missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate peer name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Transport != "udp" && p.Transport != "tcp" {
			return fmt.Errorf("config: peer %q: transport must be \"udp\" or \"tcp\"", p.Name)
		}
		if (p.Listen == "") == (p.Connect == "") {
			return fmt.Errorf("config: peer %q: exactly one of listen/connect must be set", p.Name)
		}
		if p.Password == "" && p.PasswordFile == "" {
			return fmt.Errorf("config: peer %q: password or password_file must be set", p.Name)
		}
	}
	return nil
}

// ResolvePassword returns the peer's connection password, reading
// PasswordFile if Password was left empty.
func (p *PeerConfig) ResolvePassword() ([8]byte, error) {
	var out [8]byte
	raw := p.Password
	if raw == "" {
		data, err := os.ReadFile(p.PasswordFile)
		if err != nil {
			return out, fmt.Errorf("config: read password_file for peer %q: %w", p.Name, err)
		}
		raw = string(data)
	}
	if len(raw) < len(out) {
		return out, fmt.Errorf("config: peer %q: password shorter than %d bytes", p.Name, len(out))
	}
	copy(out[:], raw)
	return out, nil
}
