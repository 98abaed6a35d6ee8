package kbeacon

import (
  "fmt"
  "net"

  "github.com/robertof/go-kbeacon-exporter/ble"
  "github.com/robertof/go-kbeacon-exporter/device"
)

type Device struct {
  name string
  addr net.HardwareAddr
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Addr() net.HardwareAddr {
  return d.addr
}

// All KBeacons share the same stateless backend.
func (d *Device) Backend() device.Backend {
  return backendPassive{}
}

// ParseAdvertisement works on the zero Device too, which discovery uses to decode
// advertisements of unconfigured beacons.
func (d *Device) ParseAdvertisement(a ble.Advertisement) (device.Reading, error) {
  return d.Backend().ParseAdvertisement(a)
}

func (d *Device) String() string {
  return fmt.Sprintf("kbeacon[name=%q, addr=%v]", d.name, d.addr.String())
}
