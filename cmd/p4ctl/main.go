package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/flowplane/p4ctl/internal/app"
	"github.com/flowplane/p4ctl/internal/apps/linkprobe"
	"github.com/flowplane/p4ctl/internal/apps/proxyarp"
	"github.com/flowplane/p4ctl/internal/config"
	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/device"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/metrics"
	"github.com/flowplane/p4ctl/internal/model"
	nbhttp "github.com/flowplane/p4ctl/internal/northbound/http"
	"github.com/flowplane/p4ctl/internal/pipeconf"
	"github.com/flowplane/p4ctl/internal/restore"
	"github.com/flowplane/p4ctl/internal/servicebus"
	"github.com/flowplane/p4ctl/internal/topology"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flags := config.ParseFlags()
	log := newLogger(flags.Verbose)

	fleet, err := config.LoadFleet(flags.FleetFile)
	if err != nil {
		return err
	}

	pipeconfs, err := pipeconf.NewRegistry(log)
	if err != nil {
		return fmt.Errorf("building pipeconf registry: %w", err)
	}

	mgr := manager.New(log)
	mgr.SetPipeconfs(pipeconfs)

	var restoreStore *restore.Store
	if flags.RestoreFile != "" {
		restoreStore = restore.Open(flags.RestoreFile)
	}

	coreCfg := core.Config{
		Logger:    log,
		Manager:   mgr,
		Pipeconfs: pipeconfs,
	}
	if restoreStore != nil {
		coreCfg.Restore = restoreStore
	}
	c := core.New(coreCfg)

	topo := topology.New(c)
	c.Install(100, topo)

	appStore := app.NewStore()
	if _, err := app.Install(appStore, func(*app.Store) (*topology.Store, error) { return topo, nil }); err != nil {
		return fmt.Errorf("registering topology app: %w", err)
	}
	proxyARP, err := proxyarp.Install(appStore, mgr, net.HardwareAddr{0x02, 0x42, 0x00, 0x00, 0x00, 0x01}, log)
	if err != nil {
		return fmt.Errorf("installing proxy-arp app: %w", err)
	}
	c.Install(50, proxyARP)

	probe := linkprobe.New(mgr, c, linkprobe.Config{
		Logger: log,
		SrcMAC: net.HardwareAddr{0x02, 0x42, 0x00, 0x00, 0x00, 0x02},
		Ports:  fleetPorts(fleet),
	})
	c.Install(10, probe)

	met := metrics.New(prometheus.DefaultRegisterer)
	mgr.SetMetrics(met)

	bus := servicebus.New()
	if err := bus.InstallService(core.NewService(c)); err != nil {
		return fmt.Errorf("installing core service on bus: %w", err)
	}
	httpSrv := nbhttp.New(log, bus)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		c.Run(gctx)
		return nil
	})

	if restoreStore != nil {
		devices, err := restoreStore.Load()
		if err != nil {
			return fmt.Errorf("loading restore file: %w", err)
		}
		if err := restore.Replay(c, devices); err != nil {
			log.Warn("restore replay had errors", "error", err)
		}
	}

	for _, d := range fleet.Devices {
		if err := submitAddDevice(c, d); err != nil {
			log.Warn("failed to submit fleet device", "device", d.Name, "error", err)
		}
	}

	httpListener, err := net.Listen("tcp", flags.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening for HTTP: %w", err)
	}
	group.Go(func() error {
		srv := &http.Server{Handler: httpSrv.Handler()}
		go func() {
			<-gctx.Done()
			_ = srv.Close()
		}()
		if err := srv.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	metricsListener, err := net.Listen("tcp", flags.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listening for metrics: %w", err)
	}
	group.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Handler: mux}
		go func() {
			<-gctx.Done()
			_ = srv.Close()
		}()
		if err := srv.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return probe.Run(gctx, c)
	})

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	for _, id := range topo.Devices() {
		reply := make(chan error, 1)
		c.Submit(core.Request{Kind: core.RequestRemoveDevice, DeviceID: id, Reply: reply})
		select {
		case <-reply:
		case <-drainCtx.Done():
		}
	}

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("clean shutdown complete")
	return nil
}

func fleetPorts(fleet config.Fleet) map[model.DeviceID][]uint32 {
	ports := make(map[model.DeviceID][]uint32, len(fleet.Devices))
	for _, d := range fleet.Devices {
		ports[model.NewDeviceID(d.Name)] = d.Ports
	}
	return ports
}

func submitAddDevice(c *core.Core, d config.DeviceSpec) error {
	dev, err := d.ToDevice()
	if err != nil {
		return err
	}

	var election *device.ElectionID
	if d.Elect {
		election = &device.ElectionID{High: 0, Low: 1}
	}

	reply := make(chan error, 1)
	c.Submit(core.Request{
		Kind:   core.RequestAddDevice,
		Device: dev,
		AddDeviceOpts: manager.AddDeviceOptions{
			Election: election,
		},
		Reply: reply,
	})
	return <-reply
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
