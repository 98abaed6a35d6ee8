package device

import (
	"errors"
	"net"

	"github.com/robertof/go-kbeacon-exporter/ble"
)

// Parse failures. Callers discard the advertisement and wait for the next one.
var (
  ErrInvalidData = errors.New("invalid data")
  ErrCorruptedData = errors.New("corrupted data")
  // The payload ended before every field announced by its header could be read.
  ErrIncompleteData = errors.New("incomplete data")
)

// ScanMode is how the controller has to scan for a device's advertisements to arrive.
type ScanMode uint8

const (
  ScanModePassive ScanMode = iota
  // The readings travel in scan responses, which are only requested by active scans.
  ScanModeActive
)

func (m ScanMode) String() string {
  if m == ScanModeActive {
    return "active"
  }

  return "passive"
}

// Backend turns the advertisements of one device model into readings.
type Backend interface {
  ScanMode() ScanMode
  ParseAdvertisement(a ble.Advertisement) (Reading, error)
}

type Device interface {
  Name() string
  Addr() net.HardwareAddr
  Backend() Backend
  String() string
}

// Factory builds devices of one vendor out of the values of its command line flag.
type Factory interface {
  NewDevice(spec DeviceSpec) (Device, error)
  Help() string
}

// NeedsActiveScan reports whether any device requires an active scan.
func NeedsActiveScan(devices []Device) bool {
  for _, dev := range devices {
    if dev.Backend().ScanMode() == ScanModeActive {
      return true
    }
  }

  return false
}

// Addrs returns the addresses of `devices`, in order.
func Addrs(devices []Device) []net.HardwareAddr {
  out := make([]net.HardwareAddr, len(devices))

  for i, dev := range devices {
    out[i] = dev.Addr()
  }

  return out
}
