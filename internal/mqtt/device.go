package mqtt

import "github.com/nugget/aide/internal/buildinfo"

// DeviceInfo is the Home Assistant device block shared by every
// discovery payload so the sensors group under one device.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is the retained discovery payload for one sensor.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
}

// NewDeviceInfo builds the device block. The instance id is the stable
// identifier; name is what Home Assistant shows.
func NewDeviceInfo(instanceID, name string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{instanceID},
		Name:         name,
		Manufacturer: "aide",
		Model:        "aide agent runtime",
		SWVersion:    buildinfo.Version,
	}
}

type sensorDef struct {
	entity string
	config SensorConfig
}

func (b *Bridge) sensorDefinitions() []sensorDef {
	device := NewDeviceInfo(b.instanceID, b.cfg.ClientID)
	avail := b.availabilityTopic()
	def := func(entity, name, icon string, mod func(*SensorConfig)) sensorDef {
		c := SensorConfig{
			Name:              device.Name + " " + name,
			UniqueID:          b.instanceID + "_" + entity,
			StateTopic:        b.stateTopic(entity),
			AvailabilityTopic: avail,
			Device:            device,
			Icon:              icon,
		}
		if mod != nil {
			mod(&c)
		}
		return sensorDef{entity: entity, config: c}
	}
	counter := func(unit string) func(*SensorConfig) {
		return func(c *SensorConfig) {
			c.StateClass = "total_increasing"
			c.UnitOfMeasurement = unit
		}
	}
	return []sensorDef{
		def("turns_today", "Turns Today", "mdi:chat-processing", counter("turns")),
		def("failed_turns_today", "Failed Turns Today", "mdi:chat-alert", counter("turns")),
		def("tokens_today", "Tokens Today", "mdi:counter", counter("tokens")),
		def("last_turn", "Last Turn", "mdi:clock-check", func(c *SensorConfig) {
			c.DeviceClass = "timestamp"
			c.EntityCategory = "diagnostic"
		}),
		def("version", "Version", "mdi:tag", func(c *SensorConfig) {
			c.EntityCategory = "diagnostic"
		}),
	}
}
