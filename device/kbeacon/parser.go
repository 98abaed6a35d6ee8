package kbeacon

import (
  "encoding/binary"

  "github.com/pkg/errors"
  "github.com/robertof/go-kbeacon-exporter/device"
)

// Sensor payload layout (big-endian):
//
//   [0]      advertisement frame type, not interpreted here
//   [1:3]    sensor mask
//   [3:...]  one 2-byte value per set mask bit, in mask bit order
const (
  frameTypeLen = 1
  sensorMaskLen = 2
  sensorValueLen = 2
)

type sensorMask uint16

const (
  sensorMaskBattery sensorMask = 1 << iota
  sensorMaskTemperature
  sensorMaskHumidity
)

type sensorField struct {
  mask sensorMask
  name string
  set func(r *device.Reading, raw uint16)
}

// Order matters: values appear in the payload in this order. Unknown mask bits are
// ignored and never consume bytes.
var sensorFields = [...]sensorField{
  {
    mask: sensorMaskBattery,
    name: "battery",
    set: func(r *device.Reading, raw uint16) {
      r.BatteryMillivolts = device.Some(raw)
    },
  },
  {
    mask: sensorMaskTemperature,
    name: "temperature",
    set: func(r *device.Reading, raw uint16) {
      r.TemperatureCelsius = device.Some(DecodeFixedPoint(int16(raw))) // 2's complement
    },
  },
  {
    mask: sensorMaskHumidity,
    name: "humidity",
    set: func(r *device.Reading, raw uint16) {
      r.HumidityPercent = device.Some(DecodeFixedPoint(int16(raw)))
    },
  },
}

// ParseAdvPacket decodes the service data of a KBeacon sensor advertisement. A payload
// too short for the fields its mask announces yields an error matching
// device.ErrIncompleteData and an empty reading; trailing bytes are ignored.
func ParseAdvPacket(data []byte) (reading device.Reading, err error) {
  bo := binary.BigEndian
  idx := frameTypeLen

  if len(data) < idx + sensorMaskLen {
    return reading, errors.Wrapf(device.ErrIncompleteData,
      "kbeacon: payload too short for sensor mask (%d bytes)", len(data))
  }

  mask := sensorMask(bo.Uint16(data[idx:]))
  idx += sensorMaskLen

  for _, field := range sensorFields {
    if mask & field.mask == 0 {
      continue
    }

    if len(data) - idx < sensorValueLen {
      return device.Reading{}, errors.Wrapf(device.ErrIncompleteData,
        "kbeacon: payload truncated in %s value (mask %#04x, offset %d, length %d)",
        field.name, uint16(mask), idx, len(data))
    }

    field.set(&reading, bo.Uint16(data[idx:]))
    idx += sensorValueLen
  }

  return reading, nil
}
