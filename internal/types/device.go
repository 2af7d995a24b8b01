package types

import (
	"fmt"
	"strings"
)

// DeviceType is one of the closed set of Alpaca device categories.
type DeviceType string

const (
	DeviceTypeCamera              DeviceType = "camera"
	DeviceTypeCoverCalibrator     DeviceType = "covercalibrator"
	DeviceTypeDome                DeviceType = "dome"
	DeviceTypeFilterWheel         DeviceType = "filterwheel"
	DeviceTypeFocuser             DeviceType = "focuser"
	DeviceTypeObservingConditions DeviceType = "observingconditions"
	DeviceTypeRotator             DeviceType = "rotator"
	DeviceTypeSafetyMonitor       DeviceType = "safetymonitor"
	DeviceTypeSwitch              DeviceType = "switch"
	DeviceTypeTelescope           DeviceType = "telescope"
)

// AllDeviceTypes lists the device types in registry order.
var AllDeviceTypes = []DeviceType{
	DeviceTypeCamera,
	DeviceTypeCoverCalibrator,
	DeviceTypeDome,
	DeviceTypeFilterWheel,
	DeviceTypeFocuser,
	DeviceTypeObservingConditions,
	DeviceTypeRotator,
	DeviceTypeSafetyMonitor,
	DeviceTypeSwitch,
	DeviceTypeTelescope,
}

// ParseDeviceType resolves a tag to a DeviceType. Tags are matched in lower case.
func ParseDeviceType(tag string) (DeviceType, error) {
	t := DeviceType(strings.ToLower(tag))
	for _, known := range AllDeviceTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown device type: %s", tag)
}

// ConfiguredDevice is one entry of /management/v1/configureddevices.
type ConfiguredDevice struct {
	DeviceName   string     `json:"DeviceName"`
	DeviceType   DeviceType `json:"DeviceType"`
	DeviceNumber int        `json:"DeviceNumber"`
	UniqueID     string     `json:"UniqueID"`
}

// ServerDescription is the payload of /management/v1/description.
type ServerDescription struct {
	ServerName          string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// DiscoveryResponse answers a discovery probe.
type DiscoveryResponse struct {
	AlpacaPort int `json:"AlpacaPort"`
}
