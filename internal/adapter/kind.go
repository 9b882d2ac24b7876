package adapter

import (
	"strings"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Kind identifies the vendor protocol family an adapter speaks.
type Kind string

// Kind constants.
const (
	KindHikvision Kind = "hikvision"
	KindZKTeco    Kind = "zkteco"
	KindDahua     Kind = "dahua"
	KindStub      Kind = "stub"
)

// AllKinds returns all adapter kinds.
func AllKinds() []Kind {
	return []Kind{KindHikvision, KindZKTeco, KindDahua, KindStub}
}

// Classify maps a device's manufacturer string and protocol to an adapter
// kind. Pure and total: every input yields a kind, and equal inputs always
// yield the same kind.
//
// Manufacturer matching is a case-insensitive substring check, so values
// like "HIKVISION Digital Technology" or "zkteco co ltd" resolve correctly.
// An unknown manufacturer on an HTTP or HTTPS device falls back to the
// Hikvision adapter; this mirrors the long-standing fleet default where
// unlabelled HTTP controllers were overwhelmingly Hikvision hardware.
// Everything else gets the stub.
func Classify(manufacturer string, protocol device.Protocol) Kind {
	m := strings.ToLower(manufacturer)

	switch {
	case strings.Contains(m, "hikvision"), strings.Contains(m, "hik"):
		return KindHikvision
	case strings.Contains(m, "zkteco"), strings.Contains(m, "zk"):
		return KindZKTeco
	case strings.Contains(m, "dahua"):
		return KindDahua
	}

	if protocol == device.ProtocolHTTP || protocol == device.ProtocolHTTPS {
		return KindHikvision
	}

	return KindStub
}

// ClassifyDevice resolves the adapter kind for a registered device.
func ClassifyDevice(dev *device.Device) Kind {
	manufacturer := ""
	if dev.Manufacturer != nil {
		manufacturer = *dev.Manufacturer
	}
	return Classify(manufacturer, dev.Protocol)
}
