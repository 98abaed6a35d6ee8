package collector

import (
  "context"
  "sync"
  "sync/atomic"
  "time"

  "github.com/robertof/go-kbeacon-exporter/collector/model"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/rs/zerolog/log"
)

type collectFunc func(
  ctx context.Context,
  devices []device.Device,
  opts Options,
) (map[device.Device]model.Result, error)

// UpdateFunc receives every non-empty set of readings stored by the collector. It is called
// from the collection goroutine and should not block for long.
type UpdateFunc func(readings map[device.Device]device.Reading, ts time.Time)

// Recurring collects readings at a fixed interval and keeps the latest successful ones.
//
// Without an OnUpdate consumer the readings are only pulled through Latest() and
// WaitLatest(), so the collector suspends once nobody asked for them in IdleTimeout
// and resumes on the next call. With OnUpdate set every collection is pushed, and the
// collector never suspends.
type Recurring struct {
  IdleTimeout time.Duration
  OnUpdate UpdateFunc

  collect collectFunc
  devices []device.Device

  mu sync.Mutex
  readings map[device.Device]device.Reading
  collectionTime time.Time
  lastRead time.Time
  // non-nil while suspended, closed when the collection that ends the suspension is stored.
  resumed chan struct{}

  wake chan struct{}
  started atomic.Bool
}

func NewRecurring(c *Collector, devices []device.Device) *Recurring {
  return &Recurring{
    devices: devices,
    collect: c.Collect,
    lastRead: time.Now(),
    wake: make(chan struct{}, 1),
  }
}

// Update replaces the stored readings and returns the collection time recorded for them.
func (s *Recurring) Update(r map[device.Device]device.Reading) time.Time {
  s.mu.Lock()
  defer s.mu.Unlock()

  if r == nil {
    panic("attempted to set nil reading")
  }

  s.readings = r
  s.collectionTime = time.Now()

  return s.collectionTime
}

// Latest returns the stored readings. A suspended collector is woken up, but the
// readings returned are the ones from before the suspension.
func (s *Recurring) Latest() (map[device.Device]device.Reading, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.wakeLocked()

  return s.getLocked()
}

// WaitLatest is Latest, except that when the collector was suspended it waits for the
// collection started by the wake-up (or for ctx) before returning.
func (s *Recurring) WaitLatest(ctx context.Context) (map[device.Device]device.Reading, time.Time) {
  s.mu.Lock()
  resumed := s.resumed
  s.wakeLocked()
  s.mu.Unlock()

  if resumed != nil {
    select {
    case <-resumed:
    case <-ctx.Done():
    }
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  return s.getLocked()
}

func (s *Recurring) wakeLocked() {
  if s.resumed == nil {
    return
  }

  select {
  case s.wake <- struct{}{}:
  default:
  }
}

func (s *Recurring) getLocked() (map[device.Device]device.Reading, time.Time) {
  if s.readings == nil || s.collectionTime.IsZero() {
    panic("Latest() on collector.Recurring called before the first Update()")
  }

  s.lastRead = time.Now()

  // the map is replaced, never modified, on update.
  return s.readings, s.collectionTime
}

// suspend marks the collector suspended when its readings were not pulled for longer
// than IdleTimeout.
func (s *Recurring) suspend() (bool, time.Duration) {
  if s.IdleTimeout <= 0 || s.OnUpdate != nil {
    return false, 0
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  idle := time.Since(s.lastRead)

  if idle <= s.IdleTimeout {
    return false, idle
  }

  s.resumed = make(chan struct{})

  // a wake-up left over from the previous suspension.
  select {
  case <-s.wake:
  default:
  }

  return true, idle
}

func (s *Recurring) resume() {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.resumed != nil {
    close(s.resumed)
    s.resumed = nil
  }
}

func (s *Recurring) isSuspended() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.resumed != nil
}

// Start collects every `interval` until ctx is done. It must be called once.
func (s *Recurring) Start(
  ctx context.Context,
  interval time.Duration,
  opts Options,
) {
  if !s.started.CompareAndSwap(false, true) {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  log.Info().
    Dur("Interval", interval).
    Int("MaxRetries", opts.MaxRetries).
    Dur("TimeoutPerAttemptSec", opts.TimeoutPerAttempt).
    Dur("IdleTimeoutSec", s.IdleTimeout).
    Bool("Push", s.OnUpdate != nil).
    Msg("Starting recurring collector")

  ticker := time.NewTicker(interval)
  defer ticker.Stop()

  // waiters of a suspension must not outlive the collector.
  defer s.resume()

  for {
    select {
    case <-ctx.Done():
      log.Info().Msg("Recurring collector is shutting down")
      return
    case <-ticker.C:
    }

    if suspended, idle := s.suspend(); suspended {
      log.Warn().
        Dur("IdleTimeoutSec", s.IdleTimeout).
        Dur("TimeSinceLastReadSec", idle).
        Msg("Suspending recurring collector due to inactivity. If you see this message often, " +
            "you probably need to adjust the collection interval with '-interval'.")

      select {
      case <-ctx.Done():
        log.Info().Msg("Recurring collector is shutting down")
        return
      case <-s.wake:
      }

      log.Debug().Msg("Recurring collector resumed, collecting now")
      ticker.Reset(interval)
    }

    s.collectOnce(ctx, opts)
    s.resume()
  }
}

func (s *Recurring) collectOnce(ctx context.Context, opts Options) {
  results, err := s.collect(ctx, s.devices, opts)

  update, failures := model.Split(results)

  for dev, err := range failures {
    log.Warn().
      Stringer("Device", dev).
      Err(err).
      Msg("Collection failed for device")
  }

  for dev, reading := range update {
    log.Debug().
      Stringer("Device", dev).
      Stringer("Reading", reading).
      Msg("Collected reading")
  }

  if err != nil {
    log.Warn().Err(err).Int("Collected", len(update)).Msg("Collection ended early")
  }

  // stale readings stay in place when nothing was collected; their timestamp keeps them
  // from being reported as new.
  if len(update) == 0 {
    return
  }

  ts := s.Update(update)

  if s.OnUpdate != nil {
    s.OnUpdate(update, ts)
  }
}
