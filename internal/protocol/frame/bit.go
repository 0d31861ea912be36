package frame

import "fmt"

// Bit is the alternating sequence/ack value. It has exactly two states.
type Bit uint8

const (
	Zero Bit = 0
	One  Bit = 1
)

// Flip returns the other bit.
func (b Bit) Flip() Bit {
	if b == Zero {
		return One
	}
	return Zero
}

func (b Bit) Valid() bool {
	return b == Zero || b == One
}

func (b Bit) String() string {
	switch b {
	case Zero:
		return "0"
	case One:
		return "1"
	default:
		return fmt.Sprintf("Bit(%d)", uint8(b))
	}
}
