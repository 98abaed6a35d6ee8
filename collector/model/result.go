package model

import (
  "fmt"

  "github.com/robertof/go-kbeacon-exporter/device"
)

// Result is the outcome of collecting a single device: either a reading or the error
// that prevented one.
type Result struct {
  Reading device.Reading
  Error error
}

func (c Result) Ok() bool {
  return c.Error == nil
}

func (c Result) String() string {
  if c.Error != nil {
    return fmt.Sprintf("result:error(%v)", c.Error)
  }

  return fmt.Sprintf("result:success(%v)", c.Reading)
}

// Split separates successful readings from failures. Both returned maps are non-nil.
func Split(results map[device.Device]Result) (
  readings map[device.Device]device.Reading,
  failures map[device.Device]error,
) {
  readings = make(map[device.Device]device.Reading, len(results))
  failures = make(map[device.Device]error)

  for dev, res := range results {
    if res.Ok() {
      readings[dev] = res.Reading
    } else {
      failures[dev] = res.Error
    }
  }

  return readings, failures
}
