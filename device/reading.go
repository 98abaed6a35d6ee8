package device

import (
  "fmt"
  "strings"
)

// Reading is a single decoded sensor payload. Each field is present only when the
// device reported it.
type Reading struct {
  BatteryMillivolts Optional[uint16]
  TemperatureCelsius Optional[float64]
  HumidityPercent Optional[float64]
}

// BatteryVolts converts the raw millivolt battery value for display.
func (r Reading) BatteryVolts() (float64, bool) {
  mv, ok := r.BatteryMillivolts.Get()

  if !ok {
    return 0, false
  }

  return float64(mv) / 1000, true
}

// Empty reports whether no field is present.
func (r Reading) Empty() bool {
  return !r.BatteryMillivolts.IsSet() && !r.TemperatureCelsius.IsSet() && !r.HumidityPercent.IsSet()
}

func (r Reading) String() string {
  var fields []string

  if mv, ok := r.BatteryMillivolts.Get(); ok {
    fields = append(fields, fmt.Sprintf("Battery=%dmV", mv))
  }

  if temp, ok := r.TemperatureCelsius.Get(); ok {
    fields = append(fields, fmt.Sprintf("Temperature=%.2fC", temp))
  }

  if hum, ok := r.HumidityPercent.Get(); ok {
    fields = append(fields, fmt.Sprintf("Humidity=%.2f%%", hum))
  }

  return fmt.Sprintf("Reading[%v]", strings.Join(fields, ","))
}
