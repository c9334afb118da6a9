package light

// Direction is one of the six face directions light travels through.
type Direction uint8

const (
	West  Direction = iota // -X
	East                   // +X
	Down                   // -Y
	Up                     // +Y
	North                  // -Z
	South                  // +Z

	NumDirections = 6
)

var dirOffsets = [NumDirections][3]int{
	West:  {-1, 0, 0},
	East:  {1, 0, 0},
	Down:  {0, -1, 0},
	Up:    {0, 1, 0},
	North: {0, 0, -1},
	South: {0, 0, 1},
}

var dirOpposites = [NumDirections]Direction{
	West:  East,
	East:  West,
	Down:  Up,
	Up:    Down,
	North: South,
	South: North,
}

// Offset returns d's unit step in voxel coordinates.
func (d Direction) Offset() (dx, dy, dz int) {
	o := dirOffsets[d]
	return o[0], o[1], o[2]
}

// Opposite returns the direction facing back at d.
func (d Direction) Opposite() Direction { return dirOpposites[d] }

// axis returns the coordinate axis d moves along (0 for X, 1 for Y, 2 for
// Z) and whether it moves toward positive values.
func (d Direction) axis() (int, bool) {
	switch d {
	case West:
		return 0, false
	case East:
		return 0, true
	case Down:
		return 1, false
	case Up:
		return 1, true
	case North:
		return 2, false
	default:
		return 2, true
	}
}

func (d Direction) String() string {
	switch d {
	case West:
		return "west"
	case East:
		return "east"
	case Down:
		return "down"
	case Up:
		return "up"
	case North:
		return "north"
	case South:
		return "south"
	}
	return "unknown"
}
