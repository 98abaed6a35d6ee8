package kbeacon

import (
  "net"
  "strings"

  "github.com/pkg/errors"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/rs/zerolog/log"
)

// Factory builds KBeacons from `addr=...,name=...` specs.
type Factory struct{}

func (f *Factory) NewDevice(spec device.DeviceSpec) (device.Device, error) {
  if err := spec.Require(device.DeviceSpecFieldAddress); err != nil {
    return nil, err
  }

  hwAddr, err := parseBluetoothAddr(spec.Addr())
  if err != nil {
    return nil, err
  }

  name := spec.Name()
  if name == "" {
    name = defaultName(hwAddr)
  }

  d := &Device{name: name, addr: hwAddr}

  log.Debug().Stringer("Device", d).Msg("kbeacon: configured device, readings come from active scans")

  return d, nil
}

func parseBluetoothAddr(s string) (net.HardwareAddr, error) {
  hwAddr, err := net.ParseMAC(s)
  if err != nil {
    return nil, errors.Wrap(err, "invalid addr")
  }

  if len(hwAddr) != 6 {
    return nil, errors.Errorf("invalid addr %q: not a 48-bit Bluetooth address", s)
  }

  return hwAddr, nil
}

// defaultName is "kbeacon-" followed by the address in lowercase hex without separators.
func defaultName(addr net.HardwareAddr) string {
  return "kbeacon-" + strings.ReplaceAll(addr.String(), ":", "")
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this KBeacon device
name (string): Name of this KBeacon device. Defaults to "kbeacon-" followed by the address`
}
