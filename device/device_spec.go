package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DeviceSpec is the parsed form of a `key=value,key=value` device flag.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}

  for _, entry := range strings.Split(s, ",") {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    key, value, found := strings.Cut(entry, "=")

    if !found {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}

// Require returns an error listing every key from `keys` that is missing or empty.
func (ds DeviceSpec) Require(keys ...string) error {
  var missing []string

  for _, key := range keys {
    if ds[key] == "" {
      missing = append(missing, key)
    }
  }

  if len(missing) == 0 {
    return nil
  }

  sort.Strings(missing)

  return fmt.Errorf("missing required device spec field(s): %s", strings.Join(missing, ", "))
}
