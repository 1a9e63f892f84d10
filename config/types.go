package config

// SystemConfig is the device table loaded at startup
type SystemConfig struct {
	Devices map[string]DeviceProfile `json:"devices"`
	Debug   bool                     `json:"debug"`
	Events  *bool                    `json:"events,omitempty"`
}

// DeviceProfile configures one device. Controls lists control bit names
// such as "rd", "block" or "nolinemode". The names are ORed into one
// request applied to a zero configuration, so when both halves of a pair
// are listed the off half wins regardless of order.
type DeviceProfile struct {
	Controls    []string `json:"controls"`
	Baud        int      `json:"baud,omitempty"`
	LineSize    int      `json:"line_size,omitempty"`
	Overflow    string   `json:"overflow,omitempty"` // "break" or "reject"
	FlowControl *bool    `json:"flow_control,omitempty"`
	EchoTo      string   `json:"echo_to,omitempty"`

	// Stream devices only
	RxSize    int `json:"rx_size,omitempty"`
	TxSize    int `json:"tx_size,omitempty"`
	HighWater int `json:"high_water,omitempty"`
	LowWater  int `json:"low_water,omitempty"`
}
