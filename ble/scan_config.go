package ble

import (
  "fmt"

  "github.com/go-ble/ble/linux/hci/cmd"
)

// ScanConfig selects how the controller scans.
type ScanConfig struct {
  // Active requests scan responses, which is where KBeacons put their sensor frames.
  Active bool
  // AllowListOnly makes the controller drop advertisements from devices missing from
  // the allow-list installed with AllowList().
  AllowListOnly bool
}

func (sc ScanConfig) String() string {
  mode := "passive"
  if sc.Active {
    mode = "active"
  }

  filter := "all devices"
  if sc.AllowListOnly {
    filter = "allow-listed devices"
  }

  return fmt.Sprintf("%s scan of %s", mode, filter)
}

// Interval and window are in units of 0.625ms. Scanning continuously keeps the
// chance of catching a scan response high.
const (
  scanInterval = 0x0004
  scanWindow = 0x0004
)

func (sc ScanConfig) hciParams() cmd.LESetScanParameters {
  params := cmd.LESetScanParameters{
    LEScanInterval: scanInterval,
    LEScanWindow: scanWindow,
    OwnAddressType: 0x00, // public
  }

  if sc.Active {
    params.LEScanType = 0x01
  }

  if sc.AllowListOnly {
    params.ScanningFilterPolicy = 0x01
  }

  return params
}
