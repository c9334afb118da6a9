package light

// Channel identifies one of the six light channels every chunk carries:
// sunlight and block-emitted light, one red/green/blue component each.
type Channel uint8

const (
	SunR Channel = iota
	SunG
	SunB
	EmitR
	EmitG
	EmitB

	NumChannels = 6
)

// channelInfo gives each channel the bit shift that selects its 8-bit
// slice of a packed 0xRRGGBB value, and whether it carries sunlight.
var channelInfo = [NumChannels]struct {
	shift uint
	sun   bool
}{
	SunR:  {shift: 16, sun: true},
	SunG:  {shift: 8, sun: true},
	SunB:  {shift: 0, sun: true},
	EmitR: {shift: 16},
	EmitG: {shift: 8},
	EmitB: {shift: 0},
}

// Sun reports whether c is a sunlight channel. Sunlight seeds at Max and
// falls straight down without step loss while it stays at Max.
func (c Channel) Sun() bool { return channelInfo[c].sun }

// Slice extracts c's component from a packed 0xRRGGBB value.
func (c Channel) Slice(rgb uint32) uint8 { return uint8(rgb >> channelInfo[c].shift) }

// Channels lists all six channels, sunlight first.
func Channels() [NumChannels]Channel {
	return [NumChannels]Channel{SunR, SunG, SunB, EmitR, EmitG, EmitB}
}

func (c Channel) String() string {
	switch c {
	case SunR:
		return "sun_r"
	case SunG:
		return "sun_g"
	case SunB:
		return "sun_b"
	case EmitR:
		return "emit_r"
	case EmitG:
		return "emit_g"
	case EmitB:
		return "emit_b"
	}
	return "unknown"
}
