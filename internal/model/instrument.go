package model

// InstrumentSpec carries the broker-side economics of a tradeable symbol.
// A zero field means the terminal did not report it.
type InstrumentSpec struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Point        float64 `json:"point" yaml:"point"`                 // smallest price increment
	TickValue    float64 `json:"tick_value" yaml:"tick_value"`       // account value of one tick per lot
	TickSize     float64 `json:"tick_size" yaml:"tick_size"`         // price size of one tick
	ContractSize float64 `json:"contract_size" yaml:"contract_size"` // units per standard lot
	VolumeMin    float64 `json:"volume_min" yaml:"volume_min"`
	VolumeMax    float64 `json:"volume_max" yaml:"volume_max"`
	VolumeStep   float64 `json:"volume_step" yaml:"volume_step"`
}

// Merge returns s with every unknown field filled from fallback.
func (s InstrumentSpec) Merge(fallback InstrumentSpec) InstrumentSpec {
	if s.Symbol == "" {
		s.Symbol = fallback.Symbol
	}
	if s.Point == 0 {
		s.Point = fallback.Point
	}
	if s.TickValue == 0 {
		s.TickValue = fallback.TickValue
	}
	if s.TickSize == 0 {
		s.TickSize = fallback.TickSize
	}
	if s.ContractSize == 0 {
		s.ContractSize = fallback.ContractSize
	}
	if s.VolumeMin == 0 {
		s.VolumeMin = fallback.VolumeMin
	}
	if s.VolumeMax == 0 {
		s.VolumeMax = fallback.VolumeMax
	}
	if s.VolumeStep == 0 {
		s.VolumeStep = fallback.VolumeStep
	}
	return s
}
