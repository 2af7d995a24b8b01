package types

// SwitchDescriptor describes one channel of a switch device.
// The JSON layout is the persisted descriptor document format.
type SwitchDescriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"descr"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	Step        float64    `json:"step"`
	CanWrite    bool       `json:"canwrite"`
	IO          *ChannelIO `json:"io,omitempty"`
}

// ChannelIO maps a channel to physical I/O reached through the device's binding.
type ChannelIO struct {
	Register RegisterType `json:"register"`
	Address  uint16       `json:"address"`
	Initial  *float64     `json:"initval,omitempty"`
}

type RegisterType string

const (
	RegisterTypeCoil            RegisterType = "coil"
	RegisterTypeDiscreteInput   RegisterType = "discrete_input"
	RegisterTypeInputRegister   RegisterType = "input_register"
	RegisterTypeHoldingRegister RegisterType = "holding_register"
)

// ReadOnly reports whether the register can only be read.
func (r RegisterType) ReadOnly() bool {
	return r == RegisterTypeDiscreteInput || r == RegisterTypeInputRegister
}

// Digital reports whether the register carries a single bit.
func (r RegisterType) Digital() bool {
	return r == RegisterTypeCoil || r == RegisterTypeDiscreteInput
}

// CloneDescriptors returns a deep copy of a descriptor list.
func CloneDescriptors(in []SwitchDescriptor) []SwitchDescriptor {
	out := make([]SwitchDescriptor, len(in))
	for i, d := range in {
		out[i] = d
		if d.IO != nil {
			io := *d.IO
			if d.IO.Initial != nil {
				v := *d.IO.Initial
				io.Initial = &v
			}
			out[i].IO = &io
		}
	}
	return out
}
