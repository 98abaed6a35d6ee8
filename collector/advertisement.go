package collector

import (
  "context"
  "strings"
  "sync"
  "time"

  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-kbeacon-exporter/ble"
  "github.com/robertof/go-kbeacon-exporter/collector/model"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/rs/zerolog/log"
)

var parseFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
  Name: "kbeacon_exporter_parse_failures_total",
  Help: "Advertisements from known devices that could not be turned into a reading.",
}, []string{"reason"})

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(parseFailuresCounter)
}

func failureReason(err error) string {
  switch {
  case errors.Is(err, device.ErrIncompleteData):
    return "incomplete"
  case errors.Is(err, device.ErrCorruptedData):
    return "corrupted"
  case errors.Is(err, device.ErrInvalidData):
    return "invalid"
  default:
    return "other"
  }
}

// scanOnce runs a single scan for `devices` and records what it got in `out`. An
// advertisement that does not decode is discarded and the scan keeps waiting for the
// next one from the same device; the decoding error is only kept until a good reading
// replaces it.
func (c *Collector) scanOnce(
  parent context.Context,
  devices []device.Device,
  timeout time.Duration,
  out map[device.Device]model.Result,
) error {
  var ctx context.Context
  var cancel context.CancelFunc

  if timeout > 0 {
    ctx, cancel = context.WithTimeout(parent, timeout)
  } else {
    ctx, cancel = context.WithCancel(parent)
  }

  defer cancel()

  byAddr := make(map[string]device.Device, len(devices))

  for _, dev := range devices {
    byAddr[strings.ToLower(dev.Addr().String())] = dev
  }

  var mu sync.Mutex

  err := c.scan(ctx, device.Addrs(devices), func(a ble.Advertisement) bool {
    dev, ok := byAddr[strings.ToLower(a.Addr().String())]

    if !ok {
      log.Warn().
        Str("Address", a.Addr().String()).
        Str("LocalName", a.LocalName()).
        Msg("Received advertisement from unknown device")

      return false
    }

    reading, err := dev.Backend().ParseAdvertisement(a)

    mu.Lock()
    defer mu.Unlock()

    if err != nil {
      parseFailuresCounter.WithLabelValues(failureReason(err)).Inc()

      log.Debug().
        Stringer("Device", dev).
        Err(err).
        Msg("Discarding advertisement, waiting for the next one")

      out[dev] = model.Result{Error: err}

      return false
    }

    log.Trace().
      Stringer("Device", dev).
      Stringer("Reading", reading).
      Msg("Accepted advertisement")

    out[dev] = model.Result{Reading: reading}

    return true
  })

  // the attempt timeout is the normal way for a scan to end with devices still missing.
  if errors.Is(err, context.DeadlineExceeded) {
    err = nil
  }

  return err
}
