package collector

import (
  "context"
  "net"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-kbeacon-exporter/ble"
  "github.com/robertof/go-kbeacon-exporter/collector/model"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/robertof/go-kbeacon-exporter/utils"
  "github.com/rs/zerolog/log"
)

const (
  DefaultMaxRetries = 2
  DefaultTimeoutPerAttempt = 5 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
)

// ErrNoReading is the result of a device that never sent a sensor frame during the scans.
var ErrNoReading = errors.New("no reading received before timeout")

// Options bounds a collection. Each attempt scans for at most TimeoutPerAttempt (no limit
// when zero); devices still without a reading are scanned again up to MaxRetries times,
// sleeping BackoffFactor << attempt in between.
type Options struct {
  MaxRetries int
  TimeoutPerAttempt time.Duration
  BackoffFactor time.Duration
}

func DefaultOptions() Options {
  return Options{
    MaxRetries: DefaultMaxRetries,
    TimeoutPerAttempt: DefaultTimeoutPerAttempt,
    BackoffFactor: DefaultBackoffFactor,
  }
}

func (o Options) backoff(attempt int) time.Duration {
  if o.BackoffFactor <= 0 {
    return 0
  }

  d := o.BackoffFactor << attempt

  // shifted past the sign bit.
  if d <= 0 {
    return o.BackoffFactor
  }

  return d
}

// scanFunc has the shape of ble.Handle.ScanAddresses: onAdv returns true once the
// advertisement of a device is accepted, and the scan ends when every device is done.
type scanFunc func(ctx context.Context, addrs []net.HardwareAddr, onAdv func(ble.Advertisement) bool) error

// Collector turns scans into one reading per device.
type Collector struct {
  scan scanFunc
}

func New(h *ble.Handle) *Collector {
  return &Collector{scan: h.ScanAddresses}
}

// Collect scans until every device produced a reading or the attempts run out. The
// returned map has an entry for every device: devices that never sent a decodable frame
// carry the last decoding error, or ErrNoReading. The error is non-nil when ctx ends
// early or the last scan failed while devices were still missing.
func (c *Collector) Collect(
  ctx context.Context,
  devices []device.Device,
  opts Options,
) (map[device.Device]model.Result, error) {
  out := make(map[device.Device]model.Result, len(devices))
  pending := devices

  log.Debug().
    Array("Devices", utils.LogArray(devices)).
    Msg("Collecting readings from devices")

  var scanErr error
  attempts := 0

  for len(pending) > 0 {
    scanErr = c.scanOnce(ctx, pending, opts.TimeoutPerAttempt, out)
    attempts++

    pending = missing(pending, out)

    if err := ctx.Err(); err != nil {
      return out, err
    }

    if len(pending) == 0 || attempts > opts.MaxRetries {
      break
    }

    backoff := opts.backoff(attempts - 1)

    log.Debug().
      Array("Devices", utils.LogArray(pending)).
      Int("RetriesLeft", opts.MaxRetries - attempts + 1).
      Dur("Backoff", backoff).
      AnErr("ScanError", scanErr).
      Msg("No reading from some devices yet, scanning again")

    if err := sleep(ctx, backoff); err != nil {
      return out, err
    }
  }

  if len(pending) == 0 {
    return out, nil
  }

  for _, dev := range pending {
    if _, ok := out[dev]; !ok {
      out[dev] = model.Result{Error: errors.Wrapf(ErrNoReading, "%d scan(s)", attempts)}
    }
  }

  return out, scanErr
}

// missing returns the devices of `devices` without a successful result in `out`.
func missing(devices []device.Device, out map[device.Device]model.Result) []device.Device {
  var left []device.Device

  for _, dev := range devices {
    if res, ok := out[dev]; !ok || !res.Ok() {
      left = append(left, dev)
    }
  }

  return left
}

func sleep(ctx context.Context, d time.Duration) error {
  if d <= 0 {
    return nil
  }

  t := time.NewTimer(d)
  defer t.Stop()

  select {
  case <-ctx.Done():
    return ctx.Err()
  case <-t.C:
    return nil
  }
}
