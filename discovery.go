package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-kbeacon-exporter/ble"
	"github.com/robertof/go-kbeacon-exporter/device"
	"github.com/robertof/go-kbeacon-exporter/device/kbeacon"
)

// sighting is what discovery learned about one address.
type sighting struct {
  name string
  connectable bool
  services map[string]bool
  kbeacon bool
  reading *device.Reading
}

func (s *sighting) merge(a ble.Advertisement) {
  if s.name == "" {
    s.name = a.LocalName()
  }

  s.connectable = a.Connectable()

  for _, uuid := range a.Services() {
    s.services[uuid.String()] = true
  }
}

func doDeviceDiscovery(cfg config) {
  log.Info().
    Dur("DurationSec", cfg.DiscoveryDuration).
    Msg("Discovering devices")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.ScanConfig{Active: true})

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  ctx, cancel := context.WithTimeout(ctx, cfg.DiscoveryDuration)
  defer cancel()

  seen := make(map[string]*sighting)
  decoder := &kbeacon.Device{}

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    addr := a.Addr().String()

    s, ok := seen[addr]
    if !ok {
      s = &sighting{services: make(map[string]bool)}
      seen[addr] = s
    }

    s.merge(a)

    event := log.Debug().
      Str("Addr", addr).
      Str("Name", a.LocalName()).
      Int("RSSI", a.RSSI())

    if kbeacon.HasSensorService(a) {
      s.kbeacon = true

      // TLM and URL frames share the service with sensor frames; keep the last reading.
      if reading, err := decoder.ParseAdvertisement(a); err == nil {
        s.reading = &reading
        event = event.Stringer("Reading", reading)
      } else {
        event = event.AnErr("ParseError", err)
      }
    }

    event.Msg("Advertisement")
  })

  if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Discovery scan failed")
  }

  addrs := maps.Keys(seen)
  sort.Strings(addrs)

  log.Info().Int("Found", len(addrs)).Msg("Discovery finished")

  for _, addr := range addrs {
    s := seen[addr]
    services := maps.Keys(s.services)
    sort.Strings(services)

    event := log.Info().
      Str("Addr", addr).
      Str("Name", s.name).
      Bool("Connectable", s.connectable).
      Strs("Services", services).
      Bool("KBeacon", s.kbeacon)

    if s.reading != nil {
      event = event.Stringer("LastReading", s.reading)
    }

    event.Msg("Found device")
  }
}
