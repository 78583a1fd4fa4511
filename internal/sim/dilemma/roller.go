package dilemma

// Roller is the randomness source for dilemma gates. *rand.Rand satisfies it.
type Roller interface {
	Float64() float64
}

// HashRoller is a splitmix64 stream keyed by run seed and cycle, so a replay
// of the same cycle sees the same rolls.
type HashRoller struct {
	state uint64
}

func NewHashRoller(seed int64, cycle int) *HashRoller {
	uc := uint64(uint32(int32(cycle)))
	return &HashRoller{state: uint64(seed) ^ (uc * 0x9e3779b97f4a7c15)}
}

func (r *HashRoller) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0,1).
func (r *HashRoller) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Fixed returns the same value on every roll.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }
