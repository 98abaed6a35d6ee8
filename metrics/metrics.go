package metrics

import (
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-kbeacon-exporter/device"
)

// CollectFunc returns the readings to expose and when they were collected.
type CollectFunc func() (map[device.Device]device.Reading, time.Time)

// sensorGauge exports one Reading field, skipping readings that lack it.
type sensorGauge struct {
  desc *prometheus.Desc
  value func(device.Reading) (float64, bool)
}

func newSensorGauge(name, help string, value func(device.Reading) (float64, bool)) sensorGauge {
  return sensorGauge{
    desc: prometheus.NewDesc(name, help, []string{"name"}, nil),
    value: value,
  }
}

var sensorGauges = []sensorGauge{
  newSensorGauge(
    "sensor_temperature_celsius",
    "Temperature reported by the sensor in Celsius.",
    func(r device.Reading) (float64, bool) { return r.TemperatureCelsius.Get() },
  ),
  newSensorGauge(
    "sensor_humidity_ratio",
    "Relative humidity reported by the sensor.",
    func(r device.Reading) (float64, bool) {
      pct, ok := r.HumidityPercent.Get()
      return pct / 100, ok
    },
  ),
  newSensorGauge(
    "sensor_battery_volts",
    "Battery voltage reported by the sensor.",
    device.Reading.BatteryVolts,
  ),
}

type readingsCollector struct {
  latest CollectFunc
}

func (c *readingsCollector) Describe(ch chan<- *prometheus.Desc) {
  for _, g := range sensorGauges {
    ch <- g.desc
  }
}

// Collect exports the readings with their collection time, so a stale reading is not
// mistaken for a fresh sample.
func (c *readingsCollector) Collect(ch chan<- prometheus.Metric) {
  readings, ts := c.latest()

  for dev, reading := range readings {
    for _, g := range sensorGauges {
      v, ok := g.value(reading)
      if !ok {
        continue
      }

      ch <- prometheus.NewMetricWithTimestamp(
        ts,
        prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, v, dev.Name()),
      )
    }
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  reg.MustRegister(&readingsCollector{latest: f})
}
