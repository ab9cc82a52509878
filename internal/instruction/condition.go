package instruction

// Condition is the flag condition tested by a conditional instruction.
type Condition uint8

// conditions.
const (
	NoCondition Condition = iota
	Equal
	NotEqual
	Greater        // signed >
	GreaterOrEqual // signed >=
	Less           // signed <
	LessOrEqual    // signed <=
	Above          // unsigned >
	AboveOrEqual   // unsigned >=
	Below          // unsigned <
	BelowOrEqual   // unsigned <=
	Sign
	NotSign
	Overflow
	NotOverflow
	Parity
	NotParity
)

// Signedness describes how the compared operands have to be extended.
type Signedness uint8

// signedness values.
const (
	SignAgnostic Signedness = iota // equality tests
	Signed
	Unsigned
	SignBit   // tests the sign bit of the result
	FlagsOnly // overflow and parity, not representable by a compare result
)

// Signedness returns the operand interpretation the condition relies on.
func (c Condition) Signedness() Signedness {
	switch c {
	case Equal, NotEqual:
		return SignAgnostic
	case Greater, GreaterOrEqual, Less, LessOrEqual:
		return Signed
	case Above, AboveOrEqual, Below, BelowOrEqual:
		return Unsigned
	case Sign, NotSign:
		return SignBit
	default:
		return FlagsOnly
	}
}
