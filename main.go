package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-kbeacon-exporter/ble"
	"github.com/robertof/go-kbeacon-exporter/collector"
	"github.com/robertof/go-kbeacon-exporter/collector/model"
	"github.com/robertof/go-kbeacon-exporter/device"
	"github.com/robertof/go-kbeacon-exporter/metrics"
	"github.com/robertof/go-kbeacon-exporter/publisher"
	"github.com/robertof/go-kbeacon-exporter/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  setLogLevel(cfg)

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Devices", utils.LogArray(cfg.Devices)).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Str("MQTTBroker", cfg.MQTT.Broker).
    Msg("Starting kbeacon exporter")

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  bleHandle := openBle(cfg)
  defer bleHandle.Stop()

  coll := collector.New(bleHandle)

  recurring := collector.NewRecurring(coll, cfg.Devices)
  recurring.IdleTimeout = cfg.CollectionIdleTimeout

  initial := collectInitialReadings(ctx, cfg, coll)
  ts := recurring.Update(initial)

  if cfg.MQTT.Broker != "" {
    pub := connectPublisher(ctx, cfg)
    defer pub.Disconnect()

    publish := func(readings map[device.Device]device.Reading, ts time.Time) {
      if err := pub.Publish(ctx, readings, ts); err != nil {
        log.Warn().Err(err).Msg("Failed to publish readings to MQTT")
      }
    }

    publish(initial, ts)
    // a push consumer keeps the recurring collector from suspending.
    recurring.OnUpdate = publish
  }

  go recurring.Start(ctx, cfg.CollectionInterval, cfg.collectOptions(cfg.CollectionTimeout))

  if err := serveMetrics(ctx, cfg, newRegistry(cfg, recurring)); err != nil {
    log.Fatal().Err(err).Str("ListenAddress", cfg.BindAddress).Msg("Metrics server failed")
  }
}

func setLogLevel(cfg config) {
  level := zerolog.InfoLevel

  switch {
  case cfg.Trace || os.Getenv("TRACE") != "":
    level = zerolog.TraceLevel
  case cfg.Debug || os.Getenv("DEBUG") != "":
    level = zerolog.DebugLevel
  }

  zerolog.SetGlobalLevel(level)
}

func newRegistry(cfg config, recurring *collector.Recurring) *prometheus.Registry {
  registry := prometheus.NewRegistry()

  metrics.RegisterCollector(
    func() (map[device.Device]device.Reading, time.Time) {
      // Collect() gets no request context.
      return recurring.WaitLatest(context.Background())
    },
    registry,
  )

  if cfg.EnableMetamonitoring {
    ble.RegisterMetrics(registry)
    collector.RegisterMetrics(registry)
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
  }

  return registry
}

// serveMetrics serves /metrics until ctx ends.
func serveMetrics(ctx context.Context, cfg config, registry *prometheus.Registry) error {
  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{
    Addr: cfg.BindAddress,
    Handler: mux,
    ReadHeaderTimeout: 10 * time.Second,
  }

  go func() {
    <-ctx.Done()
    log.Info().Msg("Shutting down")

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    _ = server.Shutdown(shutdownCtx)
  }()

  log.Info().Str("ListenAddress", cfg.BindAddress).Msg("Serving metrics")

  if err := server.ListenAndServe(); err != http.ErrServerClosed {
    return err
  }

  return nil
}

func openBle(cfg config) *ble.Handle {
  sc := ble.ScanConfig{
    Active: device.NeedsActiveScan(cfg.Devices),
    AllowListOnly: true,
  }

  bleHandle, err := ble.Init(cfg.BluetoothDeviceId, sc)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  if err := bleHandle.AllowList(device.Addrs(cfg.Devices)); err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle
}

func connectPublisher(ctx context.Context, cfg config) *publisher.Publisher {
  pub := publisher.New(cfg.MQTT)

  connectCtx, cancel := context.WithTimeout(ctx, cfg.InitialCollectionTimeout)
  defer cancel()

  // the client keeps retrying in the background, so a slow broker is not fatal.
  if err := pub.Connect(connectCtx); err != nil {
    log.Warn().
      Err(err).
      Str("Broker", cfg.MQTT.Broker).
      Msg("MQTT broker not reachable yet, will keep retrying")
  }

  return pub
}

// collectInitialReadings exits unless every device produced a reading.
func collectInitialReadings(
  ctx context.Context,
  cfg config,
  coll *collector.Collector,
) map[device.Device]device.Reading {
  log.Info().
    Dur("TimeoutSec", cfg.InitialCollectionTimeout).
    Msg("Running initial collection")

  results, err := coll.Collect(ctx, cfg.Devices, cfg.collectOptions(cfg.InitialCollectionTimeout))
  readings, failures := model.Split(results)

  for dev, reading := range readings {
    log.Info().
      Stringer("Device", dev).
      Stringer("Reading", reading).
      Msg("Initial reading")
  }

  for dev, err := range failures {
    log.Error().
      Stringer("Device", dev).
      Err(err).
      Msg("No initial reading for device")
  }

  if err != nil || len(failures) > 0 {
    log.Fatal().
      Err(err).
      Int("Collected", len(readings)).
      Int("Devices", len(cfg.Devices)).
      Msg("Initial collection incomplete, refusing to start")
  }

  return readings
}
