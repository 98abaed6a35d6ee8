package kbeacon

import (
  "github.com/pkg/errors"
  "github.com/robertof/go-kbeacon-exporter/ble"
  "github.com/robertof/go-kbeacon-exporter/device"
)

const (
  ServiceUUID = "0000feaa-0000-1000-8000-00805f9b34fb"
  serviceUUID16 = 0xfeaa
)

// Frame types sent under the service UUID. Eddystone UID (0x00), URL (0x10) and
// TLM (0x20) frames share it with the sensor frame.
const (
  FrameTypeSensor byte = 0x21
)

var (
  serviceUUID = ble.MustParseUUID(ServiceUUID)
  serviceUUIDShort = ble.UUID16(serviceUUID16)
)

type backendPassive struct {}

func (c backendPassive) ScanMode() device.ScanMode {
  return device.ScanModeActive
}

// isSensorService matches both the 16-bit and the 128-bit form of the service UUID, as
// the controller reports whichever one the beacon advertised.
func isSensorService(u ble.UUID) bool {
  return u.Equal(serviceUUIDShort) || u.Equal(serviceUUID)
}

// ParseAdvertisement decodes the first sensor frame of the advertisement. Other frames
// under the same service are not readings and yield device.ErrInvalidData.
func (c backendPassive) ParseAdvertisement(a ble.Advertisement) (device.Reading, error) {
  var otherFrames []byte

  for _, sd := range a.ServiceData() {
    if !isSensorService(sd.UUID) {
      continue
    }

    // an empty element is left to the decoder, which reports it as incomplete.
    if len(sd.Data) > 0 && sd.Data[0] != FrameTypeSensor {
      otherFrames = append(otherFrames, sd.Data[0])
      continue
    }

    reading, err := ParseAdvPacket(sd.Data)

    if err != nil {
      return reading, errors.Wrapf(err, "kbeacon: cannot decode service data %x", sd.Data)
    }

    return reading, nil
  }

  if len(otherFrames) > 0 {
    return device.Reading{}, errors.Wrapf(device.ErrInvalidData,
      "kbeacon: no sensor frame in advertisement (frame types %x)", otherFrames)
  }

  return device.Reading{}, errors.Wrap(device.ErrInvalidData, "kbeacon: no sensor service data in advertisement")
}

// HasSensorService reports whether the advertisement carries service data under the
// KBeacon service UUID, whatever its frame type.
func HasSensorService(a ble.Advertisement) bool {
  for _, sd := range a.ServiceData() {
    if isSensorService(sd.UUID) {
      return true
    }
  }

  return false
}
