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

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/facebook/badvpn-go/config"
	"github.com/facebook/badvpn-go/dataproto"
	"github.com/facebook/badvpn-go/internal/filter"
	"github.com/facebook/badvpn-go/metrics"
	"github.com/facebook/badvpn-go/netlinkif"
	"github.com/facebook/badvpn-go/reactor"
	"github.com/facebook/badvpn-go/statsviz"
	"github.com/facebook/badvpn-go/tuntap"
)

// version is the version string this binary reports. It is a plain
// constant; no build step overrides it.
const version = "dev"

var (
	configFlag      string
	verboseFlag     bool
	traceLayer2Flag bool
)

func main() {
	root := &cobra.Command{
		Use:   "badvpn-client",
		Short: "badvpn-go dataplane client: TAP bridging over an authenticated, fragmenting peer mesh",
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "/etc/badvpn-client.yaml", "path to the YAML config")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose (debug) logging")

	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(configCheckCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func configureVerbosity() {
	log.SetLevel(log.InfoLevel)
	// trace-layer2 emits at debug level; asking for the dump implies
	// wanting to see it.
	if verboseFlag || traceLayer2Flag {
		log.SetLevel(log.DebugLevel)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the badvpn-client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func configCheckCmd() *cobra.Command {
	var ask bool
	cmd := &cobra.Command{
		Use:   "config-check",
		Short: "parse and validate the config without starting the dataplane",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configFlag)
			if err != nil {
				return err
			}
			if ask {
				if err := askPasswords(cfg); err != nil {
					return err
				}
			}
			if _, err := filter.Compile(cfg.RouteFilter); err != nil {
				return err
			}
			fmt.Printf("config OK: %d peer(s), iface %q, frame_mtu %d\n", len(cfg.Peers), cfg.Iface, cfg.FrameMTU)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ask, "ask-password", false, "prompt for any peer password left blank in the config")
	return cmd
}

// askPasswords prompts on the controlling terminal for any peer whose
// config left both Password and PasswordFile empty, the interactive
// alternative to embedding a secret in a repo-tracked YAML file.
func askPasswords(cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("badvpn-client: --ask-password requires an interactive terminal")
	}
	for i := range cfg.Peers {
		p := &cfg.Peers[i]
		if p.Password != "" || p.PasswordFile != "" {
			continue
		}
		fmt.Fprintf(os.Stderr, "password for peer %q: ", p.Name)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("badvpn-client: reading password for peer %q: %w", p.Name, err)
		}
		p.Password = string(pw)
	}
	return nil
}

func runCmd() *cobra.Command {
	var ask bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "bring up the TAP device and every configured peer, and run until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureVerbosity()
			cfg, err := config.Read(configFlag)
			if err != nil {
				return err
			}
			if ask {
				if err := askPasswords(cfg); err != nil {
					return err
				}
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().BoolVar(&ask, "ask-password", false, "prompt for any peer password left blank in the config")
	cmd.Flags().BoolVar(&traceLayer2Flag, "trace-layer2", false, "dump every DataProto packet and its decoded Ethernet frame to the debug log")
	return cmd
}

// server holds everything runServer wires together, so signal and
// timer handlers (closures registered with the reactor) can reach it
// without a package-level global.
type server struct {
	r       *reactor.Reactor
	cfg     *config.Config
	m       *metrics.Metrics
	tap     *tuntap.Device
	device  *dataproto.Device
	sources map[uint16]*dataproto.LocalSource
	dests   map[uint16]*dataproto.Dest
	peers   map[uint16]string // dest_id -> name, for /status rendering
	handles map[uint16]*peerHandle
	routeFn *filter.Expr

	// cmdCh carries closures from the HTTP handler goroutines
	// (/status, /drain, /reload) onto the reactor's own goroutine: the
	// reactor and every dataproto node it drives are explicitly not
	// safe for concurrent use, so reading or mutating
	// s.dests/s.sources/s.routeFn must never happen directly from an
	// http.Handler. This is the same self-pipe rendezvous
	// registerSignalPipe below uses for signal delivery, generalized to
	// carry an arbitrary callback instead of a fixed "quit" action.
	cmdCh      chan func()
	cmdWriteFD int
}

// postToReactor runs fn on the reactor's own goroutine and blocks
// until it returns, by writing one byte to the self-pipe registered
// in runServer and waiting on a done channel fn closes over.
func (s *server) postToReactor(fn func()) {
	done := make(chan struct{})
	s.cmdCh <- func() {
		fn()
		close(done)
	}
	unix.Write(s.cmdWriteFD, []byte{0})
	<-done
}

func runServer(cfg *config.Config) error {
	r, err := reactor.New()
	if err != nil {
		return fmt.Errorf("badvpn-client: creating reactor: %w", err)
	}

	routeFn, err := filter.Compile(cfg.RouteFilter)
	if err != nil {
		return err
	}

	tap, err := tuntap.Open(r, cfg.Iface, tuntap.ModeTAP, cfg.FrameMTU)
	if err != nil {
		return fmt.Errorf("badvpn-client: opening %s: %w", cfg.Iface, err)
	}
	if err := netlinkif.SetMTU(tap.Name(), cfg.FrameMTU); err != nil {
		return err
	}
	if err := netlinkif.SetUp(tap.Name()); err != nil {
		return err
	}

	m := metrics.New()

	s := &server{
		r:       r,
		cfg:     cfg,
		m:       m,
		tap:     tap,
		sources: make(map[uint16]*dataproto.LocalSource),
		dests:   make(map[uint16]*dataproto.Dest),
		peers:   make(map[uint16]string),
		handles: make(map[uint16]*peerHandle),
		routeFn: routeFn,
	}

	// device floods every TAP frame to every attached peer's local
	// source, as filtered by route_filter; this is the outbound
	// (TAP -> peers) path. Created before any peer so routeFrame can
	// close over s.sources and simply see whatever is attached by the
	// time a frame actually arrives.
	s.device = dataproto.NewDevice(tap, s.routeFrame)

	// Every peer's receive path is wired to the TAP device's Send side
	// directly (dataproto.RecvRouter strips the header before handing
	// the bare frame to tap.Send), so peers don't need to know about
	// one another's LocalSources.
	for _, pc := range cfg.Peers {
		h, err := startPeer(r, cfg, pc, tap, m)
		if err != nil {
			return fmt.Errorf("badvpn-client: peer %q: %w", pc.Name, err)
		}
		s.dests[pc.DestID] = h.dest
		s.peers[pc.DestID] = pc.Name
		s.handles[pc.DestID] = h

		ls := dataproto.NewLocalSource(s.device, cfg.LocalID, pc.DestID, cfg.NumReassemblyFrames)
		ls.Attach(h.dest)
		s.sources[pc.DestID] = ls
	}

	if err := s.registerCommandPipe(); err != nil {
		return fmt.Errorf("badvpn-client: command self-pipe: %w", err)
	}

	stop := make(chan struct{})
	go m.RunSysStatsLoop(cfg.MetricsAggregationWindow, stop)
	defer close(stop)

	mux := m.Mux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/drain", s.handleDrain)
	mux.HandleFunc("/reload", s.handleReload)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MonitoringPort), Handler: mux}

	// The signal pipe must be registered before the reactor starts:
	// RegisterIO is only safe from the reactor's own goroutine or, as
	// here, before Run is entered.
	relaySignals, err := registerSignalPipe(r)
	if err != nil {
		return err
	}

	var eg errgroup.Group
	eg.Go(func() error {
		return httpServer.ListenAndServe()
	})
	eg.Go(func() error {
		relaySignals()
		return nil
	})
	eg.Go(func() error {
		if err := sdNotifyReady(); err != nil {
			log.Warningf("badvpn-client: sd_notify: %v", err)
		}
		code := r.Run()
		httpServer.Close()
		if code != 0 {
			return fmt.Errorf("badvpn-client: reactor exited with code %d", code)
		}
		return nil
	})

	if err := eg.Wait(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// routeFrame is dataproto.Device's router callback: for every
// attached peer it evaluates the route filter against that peer's
// (dest_id, up, len) and, if allowed, routes the current frame to it.
// The filter only ever sees routing metadata, never frame content
// (internal/filter.Params has no payload field).
func (s *server) routeFrame(recvLen int) {
	ids := make([]uint16, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	for i, id := range ids {
		ls := s.sources[id]
		dest := s.dests[id]
		p := filter.Params{SourceID: s.cfg.LocalID, DestID: id, Up: dest.Up(), Len: recvLen}
		if !s.routeFn.Allow(p) {
			continue
		}
		ls.Route(i < len(ids)-1)
	}
}

// handleStatus serves the JSON shape statsviz.Decode expects, backing
// both a plain curl and badvpnctl status. The actual Dest/queue reads
// happen inside postToReactor so they run on the reactor's own
// goroutine, never concurrently with it.
func (s *server) handleStatus(w http.ResponseWriter, req *http.Request) {
	var statuses []statsviz.PeerStatus
	s.postToReactor(func() {
		statuses = make([]statsviz.PeerStatus, 0, len(s.dests))
		for destID, dest := range s.dests {
			pc := s.handles[destID].cfg
			addr := pc.Connect
			if addr == "" {
				addr = pc.Listen
			}
			statuses = append(statuses, statsviz.PeerStatus{
				Name:              s.peers[destID],
				Transport:         pc.Transport,
				Address:           addr,
				Up:                dest.Up(),
				QueueDepth:        dest.QueueDepth(),
				KeepaliveJitterNS: dest.KeepaliveJitter(),
				LastKeepalive:     dest.LastReceived(),
			})
		}
	})
	w.Header().Set("Content-Type", "application/json")
	_ = statsviz.Encode(w, statuses)
}

// handleDrain tears a single peer's dataplane pipeline down in place
// (PrepareFree + LocalSource.Detach + Dest.Free, in that order)
// without restarting the process, so an operator can pull a
// misbehaving or decommissioned peer out of the mesh. The peer stays
// absent until the next restart; badvpn-client does not currently
// support re-attaching one live.
func (s *server) handleDrain(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("peer")
	if name == "" {
		http.Error(w, "missing ?peer=name", http.StatusBadRequest)
		return
	}

	var found bool
	s.postToReactor(func() {
		for destID, peerName := range s.peers {
			if peerName != name {
				continue
			}
			found = true
			dest := s.dests[destID]
			dest.PrepareFree()
			if ls, ok := s.sources[destID]; ok {
				ls.Detach()
				delete(s.sources, destID)
			}
			dest.Free()
			delete(s.dests, destID)
			delete(s.peers, destID)
			delete(s.handles, destID)
			log.Infof("badvpnctl drain: peer %q torn down", name)
			break
		}
	})
	if !found {
		http.Error(w, fmt.Sprintf("unknown peer %q", name), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleReload re-reads the route_filter expression from the YAML
// config file at s.cfg's original path and atomically swaps it in;
// peer list, passwords, and transport settings are intentionally not
// live-reloadable (they require the listen/connect sockets those
// peers hold to be rebuilt, which handleDrain plus a process restart
// already covers).
func (s *server) handleReload(w http.ResponseWriter, req *http.Request) {
	cfg, err := config.Read(configFlag)
	if err != nil {
		http.Error(w, fmt.Sprintf("reload: %v", err), http.StatusInternalServerError)
		return
	}
	routeFn, err := filter.Compile(cfg.RouteFilter)
	if err != nil {
		http.Error(w, fmt.Sprintf("reload: route_filter: %v", err), http.StatusBadRequest)
		return
	}
	s.postToReactor(func() {
		s.routeFn = routeFn
	})
	log.Infof("badvpnctl reload: route_filter recompiled from %s", configFlag)
	w.WriteHeader(http.StatusOK)
}

// registerCommandPipe wires s.cmdCh's self-pipe into the reactor: a
// write on cmdWriteFD (from any goroutine) wakes the reactor, whose
// own goroutine then drains and runs every queued closure in order,
// same discipline as registerSignalPipe's SIGINT/SIGTERM relay below.
func (s *server) registerCommandPipe() error {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("command self-pipe: %w", err)
	}
	readFD, writeFD := fds[0], fds[1]
	s.cmdCh = make(chan func(), 16)
	s.cmdWriteFD = writeFD

	s.r.RegisterIO(readFD, reactor.Readable, func(reactor.Interest) {
		var buf [64]byte
		unix.Read(readFD, buf[:])
		for {
			select {
			case fn := <-s.cmdCh:
				fn()
			default:
				return
			}
		}
	})
	return nil
}

// registerSignalPipe relays SIGINT/SIGTERM into the reactor via a
// self-pipe registered as a normal reactor I/O handle, rather than
// calling r.Quit directly from the signal-delivery goroutine: Quit is
// explicitly documented as not safe for concurrent use, so the write
// end merely wakes the reactor and the registered read-side handler
// (running on the reactor's own goroutine) performs the Quit call.
// The registration happens here, before Run starts; only the returned
// relay loop runs on its own goroutine.
func registerSignalPipe(r *reactor.Reactor) (func(), error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("badvpn-client: signal self-pipe: %w", err)
	}
	readFD, writeFD := fds[0], fds[1]

	r.RegisterIO(readFD, reactor.Readable, func(reactor.Interest) {
		var buf [16]byte
		unix.Read(readFD, buf[:])
		log.Info("badvpn-client: received termination signal, shutting down")
		r.Quit(0)
	})

	return func() {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		for range sigCh {
			unix.Write(writeFD, []byte{0})
		}
	}, nil
}

func sdNotifyReady() error {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		return err
	} else if !supported {
		log.Debug("badvpn-client: sd_notify not supported (NOTIFY_SOCKET unset)")
	} else {
		log.Info("badvpn-client: sent sd_notify ready")
	}
	return nil
}
