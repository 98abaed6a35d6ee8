package publisher

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "strings"
  "time"

  mqtt "github.com/eclipse/paho.mqtt.golang"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

const (
  DefaultClientID = "kbeacon-exporter"
  DefaultTopicPrefix = "kbeacon"
  DefaultPublishTimeout = 5 * time.Second
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Options struct {
  // Broker URL, e.g. tcp://localhost:1883.
  Broker string
  ClientID string
  TopicPrefix string
  PublishTimeout time.Duration
}

// Message is the JSON document published for each device reading. Fields the device did
// not report are omitted.
type Message struct {
  Name string `json:"name"`
  Addr string `json:"addr"`
  Timestamp time.Time `json:"timestamp"`
  BatteryMV *uint16 `json:"battery_mv,omitempty"`
  BatteryV *float64 `json:"battery_v,omitempty"`
  Temperature *float64 `json:"temperature_c,omitempty"`
  Humidity *float64 `json:"humidity_pct,omitempty"`
}

type Publisher struct {
  client mqtt.Client
  opts Options
}

func New(opts Options) *Publisher {
  if opts.ClientID == "" {
    opts.ClientID = DefaultClientID
  }

  if opts.TopicPrefix == "" {
    opts.TopicPrefix = DefaultTopicPrefix
  }

  if opts.PublishTimeout <= 0 {
    opts.PublishTimeout = DefaultPublishTimeout
  }

  clientOpts := mqtt.NewClientOptions()
  clientOpts.AddBroker(opts.Broker)
  clientOpts.SetClientID(opts.ClientID)
  clientOpts.SetCleanSession(true)

  clientOpts.SetAutoReconnect(true)
  clientOpts.SetConnectRetry(true)
  clientOpts.SetConnectRetryInterval(5 * time.Second)
  clientOpts.SetMaxReconnectInterval(60 * time.Second)

  clientOpts.SetKeepAlive(30 * time.Second)
  clientOpts.SetPingTimeout(10 * time.Second)

  clientOpts.SetOnConnectHandler(func(_ mqtt.Client) {
    log.Info().Str("Broker", opts.Broker).Msg("mqtt: connected")
  })

  clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
    log.Warn().Err(err).Str("Broker", opts.Broker).Msg("mqtt: connection lost")
  })

  return &Publisher{
    client: mqtt.NewClient(clientOpts),
    opts: opts,
  }
}

func waitToken(ctx context.Context, token mqtt.Token) error {
  select {
  case <-ctx.Done():
    return ctx.Err()
  case <-token.Done():
    return token.Error()
  }
}

// Connect waits for the first connection to the broker. With connect-retry enabled the
// client keeps trying in the background until ctx is done.
func (p *Publisher) Connect(ctx context.Context) error {
  if err := waitToken(ctx, p.client.Connect()); err != nil {
    return fmt.Errorf("mqtt connect to %s: %w", p.opts.Broker, err)
  }

  return nil
}

func (p *Publisher) Disconnect() {
  p.client.Disconnect(250)
  log.Info().Msg("mqtt: disconnected")
}

func topicSegment(s string) string {
  return strings.Map(func(r rune) rune {
    switch r {
    case '/', '+', '#':
      return '_'
    }

    return r
  }, s)
}

func (p *Publisher) Topic(dev device.Device) string {
  return p.opts.TopicPrefix + "/" + topicSegment(dev.Name()) + "/reading"
}

func NewMessage(dev device.Device, reading device.Reading, ts time.Time) Message {
  m := Message{
    Name: dev.Name(),
    Addr: dev.Addr().String(),
    Timestamp: ts.UTC(),
  }

  if mv, ok := reading.BatteryMillivolts.Get(); ok {
    volts, _ := reading.BatteryVolts()
    m.BatteryMV = &mv
    m.BatteryV = &volts
  }

  if temp, ok := reading.TemperatureCelsius.Get(); ok {
    m.Temperature = &temp
  }

  if hum, ok := reading.HumidityPercent.Get(); ok {
    m.Humidity = &hum
  }

  return m
}

func (p *Publisher) publish(ctx context.Context, dev device.Device, reading device.Reading, ts time.Time) error {
  topic := p.Topic(dev)

  data, err := json.Marshal(NewMessage(dev, reading, ts))
  if err != nil {
    return fmt.Errorf("marshal reading for %v: %w", dev, err)
  }

  ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
  defer cancel()

  if err := waitToken(ctx, p.client.Publish(topic, 1, false, data)); err != nil {
    return fmt.Errorf("publish to %s: %w", topic, err)
  }

  log.Debug().
    Str("Topic", topic).
    Stringer("Device", dev).
    Stringer("Reading", reading).
    Msg("mqtt: published reading")

  return nil
}

// Publish sends one message per device, concurrently, and returns the first error.
func (p *Publisher) Publish(
  ctx context.Context,
  readings map[device.Device]device.Reading,
  ts time.Time,
) error {
  if !p.client.IsConnectionOpen() {
    return ErrNotConnected
  }

  eg, ctx := errgroup.WithContext(ctx)

  for dev, reading := range readings {
    dev, reading := dev, reading

    eg.Go(func() error {
      return p.publish(ctx, dev, reading, ts)
    })
  }

  return eg.Wait()
}
