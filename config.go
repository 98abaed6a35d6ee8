package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robertof/go-kbeacon-exporter/collector"
	"github.com/robertof/go-kbeacon-exporter/device"
	"github.com/robertof/go-kbeacon-exporter/device/kbeacon"
	"github.com/robertof/go-kbeacon-exporter/publisher"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  EnableMetamonitoring bool
  DiscoverDevices bool
  DiscoveryDuration time.Duration
  BluetoothDeviceId int
  MaxRetries int
  InitialCollectionTimeout, CollectionTimeout time.Duration
  CollectionInterval, CollectionIdleTimeout time.Duration
  Backoff time.Duration
  MQTT publisher.Options
  Devices []device.Device
}

// deviceFlag is a repeatable command line flag adding one device per occurrence.
type deviceFlag struct {
  factory device.Factory
  vendor string
  devices *[]device.Device
}

var deviceFactories = map[string]device.Factory {
  "kbeacon": &kbeacon.Factory{},
}

func (d *deviceFlag) String() string {
  return ""
}

func (d *deviceFlag) Set(v string) error {
  dev, err := d.factory.NewDevice(device.NewDeviceSpec(v))
  if err != nil {
    return errors.Wrapf(err, "invalid %s device %q", d.vendor, v)
  }

  *d.devices = append(*d.devices, dev)

  return nil
}

func ParseArgs() config {
  var cfg config

  flag.StringVar(&cfg.BindAddress,"bind", "localhost:9102", "Where the exporter will bind to")
  flag.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  flag.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  flag.DurationVar(&cfg.DiscoveryDuration, "discover-duration", 5 * time.Second,
    "How long to scan for when running with -discover")
  flag.BoolVar(&cfg.EnableMetamonitoring, "metamonitoring", true, "Enable metamonitoring metrics")
  flag.IntVar(&cfg.MaxRetries, "max-retries", collector.DefaultMaxRetries, "Max number of retries")
  flag.DurationVar(&cfg.InitialCollectionTimeout, "initial-timeout", 10 * time.Second,
    "Timeout for the collection done on start (per retry attempt)")
  flag.DurationVar(&cfg.CollectionTimeout, "timeout", collector.DefaultTimeoutPerAttempt,
    "Timeout for the periodic collections (per retry attempt)")
  flag.DurationVar(&cfg.CollectionInterval, "interval", 60 * time.Second,
    "How frequently data collection happens")
  flag.DurationVar(&cfg.CollectionIdleTimeout, "idle-timeout", -1,
    "Suspend collections when metrics were not scraped for this long. Defaults to 3 * interval. " +
    "Ignored when publishing to MQTT")
  flag.DurationVar(&cfg.Backoff, "backoff", collector.DefaultBackoffFactor,
    "Exponential backoff factor for retries")
  flag.StringVar(&cfg.MQTT.Broker, "mqtt-broker", "",
    "MQTT broker URL (e.g. tcp://localhost:1883). Readings are published when set")
  flag.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", publisher.DefaultClientID, "MQTT client ID")
  flag.StringVar(&cfg.MQTT.TopicPrefix, "mqtt-topic-prefix", publisher.DefaultTopicPrefix,
    "Prefix of the <prefix>/<device name>/reading topics")
  flag.DurationVar(&cfg.MQTT.PublishTimeout, "mqtt-timeout", publisher.DefaultPublishTimeout,
    "Timeout for each MQTT publish")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for vendor, factory := range deviceFactories {
    flag.Var(
      &deviceFlag{factory: factory, vendor: vendor, devices: &cfg.Devices},
      vendor,
      "Device spec in the form of `key=value,key=value`. Repeatable.\n" + factory.Help(),
    )
  }

  flag.Parse()

  if cfg.CollectionIdleTimeout < 0 {
    cfg.CollectionIdleTimeout = cfg.CollectionInterval * 3
  }

  if !cfg.DiscoverDevices && len(cfg.Devices) == 0 {
    fmt.Fprintln(os.Stderr, "Error: at least one device is required!")
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func (cfg config) collectOptions(timeoutPerAttempt time.Duration) collector.Options {
  return collector.Options{
    MaxRetries: cfg.MaxRetries,
    TimeoutPerAttempt: timeoutPerAttempt,
    BackoffFactor: cfg.Backoff,
  }
}
