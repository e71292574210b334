// Command zntrackerd runs the peer tracker daemon: the peer-protocol
// frontend, the janitor sweep, and optionally the metrics and status
// page servers, all bound to one shared, mutex-guarded peer database.
//
// Flag parsing uses jessevdk/go-flags rather than the cobra/YAML
// combination the teacher's cmd/chihaya and cmd/trakr entry points
// use: this daemon's configuration surface (spec §6) is a flat table
// of flag/short/env/default tuples with no nesting, which go-flags'
// struct tags express directly without an intervening config file
// format (see DESIGN.md).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/Anshorei/zeronet-tracker/frontend/peer"
	"github.com/Anshorei/zeronet-tracker/janitor"
	"github.com/Anshorei/zeronet-tracker/metrics"
	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/pkg/stop"
	"github.com/Anshorei/zeronet-tracker/shared"
	"github.com/Anshorei/zeronet-tracker/statuspage"
	"github.com/Anshorei/zeronet-tracker/storage"
	"github.com/Anshorei/zeronet-tracker/storage/memory"
	"github.com/Anshorei/zeronet-tracker/storage/sqlite"
)

type options struct {
	Address      string `long:"address" short:"a" env:"ADDRESS" default:"localhost" description:"listen address for peer connections"`
	Port         uint16 `long:"port" short:"p" env:"LISTENER_PORT" default:"15442" description:"TCP port for peer connections"`
	Interval     int    `long:"interval" short:"i" env:"JANITOR_INTERVAL" default:"60" description:"janitor period in seconds"`
	Timeout      int    `long:"timeout" short:"t" env:"PEER_TIMEOUT" default:"50" description:"minutes without announce before eviction"`
	RocketPort   uint16 `long:"rocket_port" env:"ROCKET_PORT" default:"15441" description:"optional status-page port, 0 disables it"`
	DatabaseFile string `long:"database_file" short:"d" env:"DATABASE_FILE" description:"optional SQL persistence path; absent means in-memory"`
	MetricsAddr  string `long:"metrics_addr" env:"METRICS_ADDR" default:"localhost:9401" description:"address for the Prometheus metrics/pprof server"`
	Debug        bool   `long:"debug" env:"DEBUG" description:"enable debug logging"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	log.SetDebug(opts.Debug)

	if err := run(opts); err != nil {
		log.Fatal("zntrackerd exited with error", log.Err(err))
	}
}

func run(opts options) error {
	db, err := openDatabase(opts.DatabaseFile)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	state := shared.New(db)
	group := stop.NewGroup()

	frontendCfg := peer.Config{Addr: net.JoinHostPort(opts.Address, portString(opts.Port))}
	frontend := peer.NewFrontend(frontendCfg, state)
	if err := frontend.Listen(); err != nil {
		return fmt.Errorf("binding peer listener %s: %w", frontendCfg.Addr, err)
	}
	group.Add(frontend)
	go func() {
		if err := frontend.Serve(); err != nil {
			log.Error("peer frontend stopped", log.Err(err))
		}
	}()

	j := janitor.New(janitor.Config{
		Interval: time.Duration(opts.Interval) * time.Second,
		Timeout:  time.Duration(opts.Timeout) * time.Minute,
	}, state)
	group.Add(j)
	go j.Run()

	metricsSrv := metrics.NewServer(metrics.Config{Addr: opts.MetricsAddr})
	group.Add(metricsSrv)

	if opts.RocketPort != 0 {
		statusSrv := statuspage.NewServer(statuspage.Config{
			Addr: net.JoinHostPort(opts.Address, portString(opts.RocketPort)),
		}, state)
		group.Add(statusSrv)
	}

	log.Info("zntrackerd started", log.Fields{
		"peer_addr": frontendCfg.Addr,
	})

	waitForSignal()

	log.Info("shutting down", nil)
	for _, err := range group.Stop() {
		log.Error("error during shutdown", log.Err(err))
	}
	return state.Close()
}

func openDatabase(path string) (storage.PeerDatabase, error) {
	if path == "" {
		return memory.New(), nil
	}
	return sqlite.Open(path)
}

func portString(p uint16) string {
	return fmt.Sprintf("%d", p)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
