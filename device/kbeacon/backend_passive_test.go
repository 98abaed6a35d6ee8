package kbeacon_test

import (
  "errors"
  "reflect"
  "testing"

  ble_mod "github.com/go-ble/ble"
  "github.com/robertof/go-kbeacon-exporter/device"
  "github.com/robertof/go-kbeacon-exporter/device/kbeacon"
)

var sensorPayload = []byte{0x21, 0x00, 0x07, 0x0c, 0x1c, 0x17, 0x80, 0x2d, 0x80}

func TestParseAdvertisement_ShortServiceUUID(t *testing.T) {
  advertisement := FakeAdvertisement{
    serviceData: []ble_mod.ServiceData{
      {UUID: ble_mod.UUID16(0xfeaa), Data: sensorPayload},
    },
  }

  dev := kbeacon.Device{}
  got, err := dev.ParseAdvertisement(advertisement)

  if err != nil {
    t.Fatalf("ParseAdvertisement(%x) got error: %v", sensorPayload, err)
  }

  want := device.Reading{
    BatteryMillivolts: device.Some[uint16](3100),
    TemperatureCelsius: device.Some(23.5),
    HumidityPercent: device.Some(45.5),
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("ParseAdvertisement(%x): got %v, wanted %v", sensorPayload, got, want)
  }

  if volts, ok := got.BatteryVolts(); !ok || volts != 3.1 {
    t.Fatalf("BatteryVolts() = %v, %v, wanted 3.1, true", volts, ok)
  }
}

func TestParseAdvertisement_FullServiceUUID(t *testing.T) {
  advertisement := FakeAdvertisement{
    serviceData: []ble_mod.ServiceData{
      {UUID: ble_mod.UUID16(0x180f), Data: []byte{0x64}},
      {UUID: ble_mod.MustParse(kbeacon.ServiceUUID), Data: sensorPayload},
    },
  }

  if !kbeacon.HasSensorService(advertisement) {
    t.Fatalf("HasSensorService() = false, wanted true")
  }

  dev := kbeacon.Device{}
  got, err := dev.ParseAdvertisement(advertisement)

  if err != nil {
    t.Fatalf("ParseAdvertisement(%x) got error: %v", sensorPayload, err)
  }

  if temp, ok := got.TemperatureCelsius.Get(); !ok || temp != 23.5 {
    t.Fatalf("ParseAdvertisement(%x): got temperature %v, wanted 23.5", sensorPayload, got.TemperatureCelsius)
  }
}

func TestParseAdvertisement_NoServiceData(t *testing.T) {
  advertisement := FakeAdvertisement{
    manufacturerData: []byte{0x59, 0x00, 0x01},
    serviceData: []ble_mod.ServiceData{
      {UUID: ble_mod.UUID16(0x180f), Data: []byte{0x64}},
    },
  }

  if kbeacon.HasSensorService(advertisement) {
    t.Fatalf("HasSensorService() = true, wanted false")
  }

  dev := kbeacon.Device{}
  _, err := dev.ParseAdvertisement(advertisement)

  if !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("ParseAdvertisement(): got error %v, wanted %v", err, device.ErrInvalidData)
  }
}

func TestParseAdvertisement_Truncated(t *testing.T) {
  data := []byte{0x21, 0x00, 0x02, 0xff}

  advertisement := FakeAdvertisement{
    serviceData: []ble_mod.ServiceData{
      {UUID: ble_mod.UUID16(0xfeaa), Data: data},
    },
  }

  dev := kbeacon.Device{}
  got, err := dev.ParseAdvertisement(advertisement)

  if !errors.Is(err, device.ErrIncompleteData) {
    t.Fatalf("ParseAdvertisement(%x): got error %v, wanted %v", data, err, device.ErrIncompleteData)
  }

  if !got.Empty() {
    t.Fatalf("ParseAdvertisement(%x): got partial reading %v", data, got)
  }
}

func TestParseAdvertisement_EddystoneFrames(t *testing.T) {
  frames := map[string][]byte{
    "uid": {0x00, 0xf4, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f},
    "url": {0x10, 0xf4, 0x03, 'k', 'k', 'm', 'c', 'n'},
    // TLM: version 0, 3000 mV, 23.5 C, counters.
    "tlm": {0x20, 0x00, 0x0b, 0xb8, 0x17, 0x80, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02},
  }

  dev := kbeacon.Device{}

  for name, data := range frames {
    advertisement := FakeAdvertisement{
      serviceData: []ble_mod.ServiceData{
        {UUID: ble_mod.UUID16(0xfeaa), Data: data},
      },
    }

    if !kbeacon.HasSensorService(advertisement) {
      t.Errorf("%s: HasSensorService() = false, wanted true", name)
    }

    got, err := dev.ParseAdvertisement(advertisement)

    if !errors.Is(err, device.ErrInvalidData) {
      t.Errorf("%s: ParseAdvertisement(%x): got error %v, wanted %v", name, data, err, device.ErrInvalidData)
    }

    if !got.Empty() {
      t.Errorf("%s: ParseAdvertisement(%x): got reading %v, wanted none", name, data, got)
    }
  }
}

func TestParseAdvertisement_SensorFrameAfterTLM(t *testing.T) {
  advertisement := FakeAdvertisement{
    serviceData: []ble_mod.ServiceData{
      {UUID: ble_mod.UUID16(0xfeaa), Data: []byte{0x20, 0x00, 0x0b, 0xb8, 0x17, 0x80, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02}},
      {UUID: ble_mod.UUID16(0xfeaa), Data: sensorPayload},
    },
  }

  dev := kbeacon.Device{}
  got, err := dev.ParseAdvertisement(advertisement)

  if err != nil {
    t.Fatalf("ParseAdvertisement() got error: %v", err)
  }

  if mv, ok := got.BatteryMillivolts.Get(); !ok || mv != 3100 {
    t.Fatalf("ParseAdvertisement(): got battery %v, wanted 3100 mV from the sensor frame", got.BatteryMillivolts)
  }
}

func TestFactory_NewDevice(t *testing.T) {
  f := kbeacon.Factory{}

  dev, err := f.NewDevice(device.NewDeviceSpec("addr=BC:57:29:02:45:47"))

  if err != nil {
    t.Fatalf("NewDevice() got error: %v", err)
  }

  if got, want := dev.Name(), "kbeacon-bc5729024547"; got != want {
    t.Errorf("Name() = %q, want %q", got, want)
  }

  if got, want := dev.Addr().String(), "bc:57:29:02:45:47"; got != want {
    t.Errorf("Addr() = %q, want %q", got, want)
  }

  if got := dev.Backend().ScanMode(); got != device.ScanModeActive {
    t.Errorf("Backend().ScanMode() = %v, wanted %v", got, device.ScanModeActive)
  }

  if !device.NeedsActiveScan([]device.Device{dev}) {
    t.Errorf("NeedsActiveScan() = false, wanted true")
  }

  named, err := f.NewDevice(device.NewDeviceSpec("name=fridge, addr=bc:57:29:02:45:48"))

  if err != nil {
    t.Fatalf("NewDevice() got error: %v", err)
  }

  if got, want := named.String(), `kbeacon[name="fridge", addr=bc:57:29:02:45:48]`; got != want {
    t.Errorf("String() = %q, want %q", got, want)
  }
}

func TestFactory_NewDeviceInvalid(t *testing.T) {
  f := kbeacon.Factory{}

  for _, spec := range []string{"", "name=fridge", "addr=nope", "addr=00:00:5e:00:53:01:02:03"} {
    if _, err := f.NewDevice(device.NewDeviceSpec(spec)); err == nil {
      t.Errorf("NewDevice(%q) got no error", spec)
    }
  }
}

type FakeAdvertisement struct {
  name string
  manufacturerData []byte
  serviceData []ble_mod.ServiceData
  addr ble_mod.Addr
}

func (f FakeAdvertisement) LocalName() string {
  return f.name
}

func (f FakeAdvertisement) ManufacturerData() []byte {
  return f.manufacturerData
}

func (f FakeAdvertisement) ServiceData() []ble_mod.ServiceData {
  return f.serviceData
}

func (f FakeAdvertisement) Services() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) OverflowService() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) TxPowerLevel() int {
  return 0
}

func (f FakeAdvertisement) Connectable() bool {
  return false
}

func (f FakeAdvertisement) SolicitedService() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) RSSI() int {
  return 0
}

func (f FakeAdvertisement) Addr() ble_mod.Addr {
  return f.addr
}
