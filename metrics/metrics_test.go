package metrics_test

import (
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  dto "github.com/prometheus/client_model/go"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/robertof/go-kbeacon-exporter/device/kbeacon"
  "github.com/robertof/go-kbeacon-exporter/metrics"
)

func mustDevice(t *testing.T, spec string) device.Device {
  t.Helper()

  dev, err := (&kbeacon.Factory{}).NewDevice(device.NewDeviceSpec(spec))

  if err != nil {
    t.Fatalf("NewDevice(%q) got error: %v", spec, err)
  }

  return dev
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]map[string]float64 {
  t.Helper()

  families, err := reg.Gather()

  if err != nil {
    t.Fatalf("Gather() got error: %v", err)
  }

  out := make(map[string]map[string]float64)

  for _, mf := range families {
    values := make(map[string]float64)

    for _, m := range mf.GetMetric() {
      values[labelValue(m, "name")] = m.GetGauge().GetValue()
    }

    out[mf.GetName()] = values
  }

  return out
}

func labelValue(m *dto.Metric, name string) string {
  for _, lp := range m.GetLabel() {
    if lp.GetName() == name {
      return lp.GetValue()
    }
  }

  return ""
}

func TestCollector(t *testing.T) {
  full := mustDevice(t, "name=fridge,addr=bc:57:29:02:45:47")
  partial := mustDevice(t, "name=garage,addr=bc:57:29:02:45:48")
  ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

  readings := map[device.Device]device.Reading{
    full: {
      BatteryMillivolts: device.Some[uint16](3100),
      TemperatureCelsius: device.Some(4.5),
      HumidityPercent: device.Some(62.5),
    },
    partial: {
      TemperatureCelsius: device.Some(-1.25),
    },
  }

  reg := prometheus.NewRegistry()

  metrics.RegisterCollector(func() (map[device.Device]device.Reading, time.Time) {
    return readings, ts
  }, reg)

  got := gather(t, reg)

  want := map[string]map[string]float64{
    "sensor_temperature_celsius": {"fridge": 4.5, "garage": -1.25},
    "sensor_humidity_ratio": {"fridge": 0.625},
    "sensor_battery_volts": {"fridge": 3.1},
  }

  for metric, values := range want {
    for name, value := range values {
      if gotValue, ok := got[metric][name]; !ok || gotValue != value {
        t.Errorf("%s{name=%q} = %v (present: %v), want %v", metric, name, gotValue, ok, value)
      }
    }

    if len(got[metric]) != len(values) {
      t.Errorf("%s has %d series, want %d", metric, len(got[metric]), len(values))
    }
  }

  families, _ := reg.Gather()

  for _, mf := range families {
    for _, m := range mf.GetMetric() {
      if m.GetTimestampMs() != ts.UnixMilli() {
        t.Errorf("%s timestamp = %d, want %d", mf.GetName(), m.GetTimestampMs(), ts.UnixMilli())
      }
    }
  }
}
