package ble

import (
  "net"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-kbeacon-exporter/utils"
  "github.com/rs/zerolog/log"
)

type Advertisement = ble.Advertisement
type ServiceData = ble.ServiceData
type Addr = ble.Addr
type UUID = ble.UUID

// Handle owns the HCI device opened by Init.
type Handle struct {
  dev *linux.Device
}

func UUID16(i uint16) UUID {
  return ble.UUID16(i)
}

// MustParseUUID parses a UUID in its canonical string form, panicking on failure.
func MustParseUUID(s string) UUID {
  return ble.MustParse(s)
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    advertisementsCounter,
    droppedAdvertisementsCounter,
  )
}

// Init opens HCI device `deviceId` (hciX) and makes it the default go-ble device.
func Init(deviceId int, sc ScanConfig) (*Handle, error) {
  log.Debug().
    Stringer("ScanConfig", sc).
    Int("DeviceID", deviceId).
    Msg("Opening Bluetooth controller")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(sc.hciParams()),
  )

  if err != nil {
    return nil, errors.Wrapf(err, "cannot open hci%d", deviceId)
  }

  ble.SetDefaultDevice(dev)

  return &Handle{dev: dev}, nil
}

// AllowList replaces the controller allow-list with `addrs`. It only filters scans
// when the handle was opened with ScanConfig.AllowListOnly.
func (h *Handle) AllowList(addrs []net.HardwareAddr) error {
  log.Debug().
    Array("DeviceAddresses", utils.LogArray(addrs)).
    Msg("Replacing the controller allow-list")

  var clearRes cmd.LEClearWhiteListRP

  if err := checkStatus(h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &clearRes), clearRes.Status); err != nil {
    return errors.Wrap(err, "cannot clear allow-list")
  }

  for _, addr := range addrs {
    le, err := hciAddr(addr)
    if err != nil {
      return err
    }

    var addRes cmd.LEAddDeviceToWhiteListRP

    err = h.dev.HCI.Send(&cmd.LEAddDeviceToWhiteList{AddressType: 0x00, Address: le}, &addRes)

    if err := checkStatus(err, addRes.Status); err != nil {
      return errors.Wrapf(err, "cannot allow-list %v", addr)
    }
  }

  return nil
}

// checkStatus folds a transport error and a non-zero HCI status into one error.
func checkStatus(err error, status uint8) error {
  if err != nil {
    return err
  }

  if status != 0 {
    return errors.Errorf("controller returned status %#02x", status)
  }

  return nil
}

// hciAddr converts a MAC address to the little-endian layout used by HCI commands.
func hciAddr(addr net.HardwareAddr) (out [6]byte, err error) {
  if len(addr) != len(out) {
    return out, errors.Errorf("cannot use %q as a Bluetooth address: not 6 bytes long", addr.String())
  }

  for i, b := range addr {
    out[len(out) - 1 - i] = b
  }

  return out, nil
}

func (h *Handle) Stop() {
  h.dev.Stop()
}
