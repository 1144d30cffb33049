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

// Command badvpnctl is the operator-facing counterpart to
// badvpn-client: it talks to a running client's monitoring HTTP
// server (the same -monitoringport a deployed badvpn-client exposes
// /status, /drain and /reload on) and never touches the dataplane
// directly.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/badvpn-go/statsviz"
)

var targetFlag string

var httpClient = &http.Client{Timeout: 5 * time.Second}

func main() {
	root := &cobra.Command{
		Use:   "badvpnctl",
		Short: "operator CLI for a running badvpn-client",
	}
	root.PersistentFlags().StringVarP(&targetFlag, "target", "t", "http://127.0.0.1:9090", "badvpn-client monitoring base URL")

	root.AddCommand(statusCmd())
	root.AddCommand(reloadCmd())
	root.AddCommand(drainCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print every peer's liveness, queue depth and keepalive jitter",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := httpClient.Get(targetFlag + "/status")
			if err != nil {
				return fmt.Errorf("badvpnctl: status: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("badvpnctl: status: server returned %s", resp.Status)
			}
			statuses, err := statsviz.Decode(resp.Body)
			if err != nil {
				return fmt.Errorf("badvpnctl: status: decoding response: %w", err)
			}
			statsviz.Render(os.Stdout, statuses)
			return nil
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "recompile route_filter from the config file on disk, live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(targetFlag + "/reload")
		},
	}
}

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain-peer <name>",
		Short: "tear down a single peer's pipeline without restarting the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(fmt.Sprintf("%s/drain?peer=%s", targetFlag, args[0]))
		},
	}
}

// post issues an empty-bodied POST and reports any non-2xx response
// as an error, the shape both /reload and /drain expect.
func post(url string) error {
	resp, err := httpClient.Post(url, "", nil)
	if err != nil {
		return fmt.Errorf("badvpnctl: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("badvpnctl: server returned %s", resp.Status)
	}
	fmt.Println("ok")
	return nil
}
