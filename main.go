// Copyright 2018 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"go.uber.org/multierr"

	"github.com/prometheus/iftable_collector/bus"
	"github.com/prometheus/iftable_collector/collector"
	"github.com/prometheus/iftable_collector/config"
	"github.com/prometheus/iftable_collector/inventory"
	"github.com/prometheus/iftable_collector/scraper"
)

var (
	configFile = kingpin.Flag(
		"config.file", "Path to configuration file.",
	).Default("collector.yml").String()
	devicesFile = kingpin.Flag(
		"devices.file", "Path to the device inventory file. It is watched for changes.",
	).Default("devices.yml").String()
	listenAddress = kingpin.Flag(
		"web.listen-address", "Address to listen on for web interface and telemetry.",
	).Default(":9117").String()
	srcAddress = kingpin.Flag(
		"snmp.source-address", "Source address to send snmp from in the format 'address:port' to use when connecting targets. If the port parameter is empty or '0', as in '127.0.0.1:' or '[::1]:0', a source port number is automatically (random) chosen.",
	).Default("").String()
	debugSNMP = kingpin.Flag(
		"snmp.debug-packets", "Include a full debug trace of SNMP packet traffics.",
	).Default("false").Bool()
	workers = kingpin.Flag(
		"snmp.workers", "Maximum number of SNMP requests in flight across all devices. A request holds its worker until it is answered or times out, so once every worker waits on an unresponsive device, requests to responsive devices queue behind them. Set it above the number of devices expected to be down at once.",
	).Default("64").Int32()
	expandEnvVars = kingpin.Flag(
		"config.expand-environment-variables", "Expand environment variables to source secrets",
	).Default("false").Bool()
	dryRun = kingpin.Flag(
		"dry-run", "Only verify configuration is valid and exit.",
	).Default("false").Bool()
)

func newPublisher(cfg config.Publisher, logger *slog.Logger) (bus.Publisher, error) {
	if cfg.URL == "" {
		logger.Warn("No publisher url configured, events are only logged")
		return bus.NewLogPublisher(logger), nil
	}
	return bus.DialAMQP(string(cfg.URL), cfg.Exchange, cfg.DialRetries, logger)
}

func main() {
	os.Exit(run())
}

func run() int {
	promslogConfig := &promslog.Config{}
	flag.AddFlags(kingpin.CommandLine, promslogConfig)
	kingpin.Version(version.Print("iftable_collector"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()
	logger := promslog.New(promslogConfig)

	logger.Info("Starting iftable_collector", "version", version.Info())
	logger.Info("operational information", "build_context", version.BuildContext())

	prometheus.MustRegister(versioncollector.NewCollector("iftable_collector"))

	// Bail early if the config is bad.
	sc := &config.SafeConfig{}
	if err := sc.ReloadConfig(*configFile, *expandEnvVars); err != nil {
		logger.Error("Error parsing config file", "err", err)
		return 1
	}
	if _, err := inventory.LoadFile(*devicesFile, *expandEnvVars); err != nil {
		logger.Error("Error parsing devices file", "err", err)
		return 1
	}
	// Exit if in dry-run mode.
	if *dryRun {
		logger.Info("Configuration parsed successfully")
		return 0
	}
	cfg := sc.Get()

	metrics := collector.NewMetrics(prometheus.DefaultRegisterer)

	session := scraper.NewGoSNMPSession(logger.With("component", "session"), *srcAddress, *workers, *debugSNMP)
	session.SetOptions(collector.SessionHooks(metrics))
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "iftable_collector_session_connections",
		Help: "Number of devices with an open SNMP connection.",
	}, func() float64 { return float64(session.Clients()) }))
	if err := session.Listen(); err != nil {
		logger.Error("Error starting SNMP session", "err", err)
		return 1
	}

	publisher, err := newPublisher(cfg.Publisher, logger.With("component", "publisher"))
	if err != nil {
		logger.Error("Error creating publisher", "err", err)
		session.Close()
		return 1
	}

	sched := collector.NewScheduler(cfg, session, publisher, logger.With("component", "scheduler"), metrics)
	watcher := inventory.NewWatcher(*devicesFile, *expandEnvVars, sched, logger.With("component", "inventory"))
	if err := watcher.Reload(); err != nil {
		logger.Error("Error loading devices", "err", err)
		if err := multierr.Combine(session.Close(), publisher.Close()); err != nil {
			logger.Error("Error shutting down", "err", err)
		}
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("Inventory watcher stopped", "err", err)
		}
	}()
	sched.Start()

	srv := &http.Server{
		Addr:              *listenAddress,
		Handler:           newHandler(sc, sched, promhttp.Handler(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Listening on", "address", *listenAddress)
		srvErr <- srv.ListenAndServe()
	}()

	term := make(chan os.Signal, 1)
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	code := 0
loop:
	for {
		select {
		case <-hup:
			if err := watcher.Reload(); err != nil {
				logger.Error("Error reloading devices", "err", err)
			}
		case sig := <-term:
			logger.Info("Received signal, exiting gracefully", "signal", sig)
			break loop
		case err := <-srvErr:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Error starting HTTP server", "err", err)
				code = 1
			}
			break loop
		}
	}

	cancel()
	<-sched.Stop().Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := multierr.Combine(
		srv.Shutdown(shutdownCtx),
		session.Close(),
		publisher.Close(),
	); err != nil {
		logger.Error("Error shutting down", "err", fmt.Errorf("shutdown: %w", err))
		code = 1
	}
	return code
}
