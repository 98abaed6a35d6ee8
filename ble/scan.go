package ble

import (
  "context"
  "net"
  "strings"
  "sync"

  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
)

var (
  advertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "kbeacon_exporter_ble_advertisements_total",
    Help: "Advertisements received from allow-listed devices.",
  })
  droppedAdvertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "kbeacon_exporter_ble_dropped_advertisements_total",
    Help: "Advertisements ignored because their sender was not requested or the scan was over.",
  })
)

// Advertisements queued per address while the previous one is being handled. Beacons
// repeat themselves, so overflowing ones are dropped.
const addressQueueLen = 10

// ScanAll reports every advertisement until ctx ends.
func (h *Handle) ScanAll(ctx context.Context, onAdv func(Advertisement)) error {
  if err := h.dev.Scan(ctx, true, onAdv); err != nil {
    return errors.Wrap(err, "scan failed")
  }

  return nil
}

// ScanAddresses scans until `accept` returned true for an advertisement of every
// address in `addrs`, or until ctx ends. The advertisements of one address reach
// `accept` one at a time in arrival order, so a rejected one is followed by the next
// the device sends. Advertisements from other addresses are ignored.
func (h *Handle) ScanAddresses(
  ctx context.Context,
  addrs []net.HardwareAddr,
  accept func(Advertisement) bool,
) error {
  ctx, cancel := context.WithCancel(ctx)
  defer cancel()

  queues := make(map[string]chan Advertisement, len(addrs))
  var pending sync.WaitGroup

  for _, addr := range addrs {
    key := strings.ToLower(addr.String())
    if _, dup := queues[key]; dup {
      continue
    }

    q := make(chan Advertisement, addressQueueLen)
    queues[key] = q

    pending.Add(1)
    go func() {
      defer pending.Done()
      handleQueue(ctx, q, accept)
    }()
  }

  // every address accepted one: end the scan.
  go func() {
    pending.Wait()
    cancel()
  }()

  // duplicates must be reported: a device whose advertisement could not be parsed is
  // retried with its next one.
  err := h.dev.Scan(ctx, true, func(a Advertisement) {
    key := strings.ToLower(a.Addr().String())
    q, ok := queues[key]

    // go-ble may still deliver advertisements after ctx ended.
    if !ok || ctx.Err() != nil {
      droppedAdvertisementsCounter.Inc()
      return
    }

    advertisementsCounter.Inc()

    log.Trace().
      Str("Addr", key).
      Int("RSSI", a.RSSI()).
      Msg("ble: queueing advertisement")

    select {
    case q <- a:
    default:
      droppedAdvertisementsCounter.Inc()
    }
  })

  if errors.Is(err, context.Canceled) {
    return nil
  }

  return err
}

func handleQueue(ctx context.Context, q <-chan Advertisement, accept func(Advertisement) bool) {
  for {
    select {
    case <-ctx.Done():
      return
    case a := <-q:
      if accept(a) {
        return
      }
    }
  }
}
