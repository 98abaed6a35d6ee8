package device_test

import (
  "testing"

  "github.com/robertof/go-kbeacon-exporter/device"
)

func TestOptional(t *testing.T) {
  var unset device.Optional[float64]

  if v, ok := unset.Get(); ok || v != 0 {
    t.Errorf("zero Optional.Get() = %v, %v, want 0, false", v, ok)
  }

  if got := unset.String(); got != "<none>" {
    t.Errorf("zero Optional.String() = %q", got)
  }

  if device.None[uint16]().IsSet() {
    t.Errorf("None().IsSet() = true")
  }

  zero := device.Some(0.0)

  if v, ok := zero.Get(); !ok || v != 0 {
    t.Errorf("Some(0).Get() = %v, %v, want 0, true", v, ok)
  }

  if got := device.Some[uint16](3000).String(); got != "3000" {
    t.Errorf("Some(3000).String() = %q", got)
  }
}

func TestReading_String(t *testing.T) {
  tests := []struct {
    r device.Reading
    want string
  }{
    {device.Reading{}, "Reading[]"},
    {
      device.Reading{
        BatteryMillivolts: device.Some[uint16](100),
        TemperatureCelsius: device.Some(1.56),
        HumidityPercent: device.Some(0.2),
      },
      "Reading[Battery=100mV,Temperature=1.56C,Humidity=0.20%]",
    },
    {device.Reading{TemperatureCelsius: device.Some(-4.75)}, "Reading[Temperature=-4.75C]"},
  }

  for _, tt := range tests {
    if got := tt.r.String(); got != tt.want {
      t.Errorf("String() = %q, want %q", got, tt.want)
    }
  }
}

func TestReading_BatteryVolts(t *testing.T) {
  if _, ok := (device.Reading{}).BatteryVolts(); ok {
    t.Errorf("BatteryVolts() on empty reading reported a value")
  }

  r := device.Reading{BatteryMillivolts: device.Some[uint16](2950)}

  if volts, ok := r.BatteryVolts(); !ok || volts != 2.95 {
    t.Errorf("BatteryVolts() = %v, %v, want 2.95, true", volts, ok)
  }

  if r.Empty() {
    t.Errorf("Empty() = true for a reading with battery")
  }
}
