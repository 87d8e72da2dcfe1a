package curve

// CurveType tags the curve kind stored alongside the calculator record. The
// numeric values are persisted on chain and must never be reassigned.
type CurveType uint8

const (
	// CurveTypeConstantPrice selects the fixed-ratio curve.
	CurveTypeConstantPrice CurveType = 0
	// CurveTypeRedemptionRate selects the compounding redemption-rate curve.
	CurveTypeRedemptionRate CurveType = 1
)

const (
	// calculatorSlotLen is the fixed width reserved for any packed
	// calculator, zero padded for kinds narrower than the slot.
	calculatorSlotLen = RedemptionRateCurveLen
	// SwapCurveLen is the packed width of a tagged curve record.
	SwapCurveLen = 1 + calculatorSlotLen
)

// SwapCurve is the closed tagged variant the pool framework persists and
// dispatches on: a curve kind plus its calculator. Adding a kind must not
// alter the calculator contract.
type SwapCurve struct {
	Type       CurveType
	Calculator Calculator
}

// NewSwapCurve wraps a calculator with its tag, rejecting kinds the pool
// framework does not know how to persist.
func NewSwapCurve(calculator Calculator) (*SwapCurve, error) {
	switch calculator.(type) {
	case *ConstantPriceCurve:
		return &SwapCurve{Type: CurveTypeConstantPrice, Calculator: calculator}, nil
	case *RedemptionRateCurve:
		return &SwapCurve{Type: CurveTypeRedemptionRate, Calculator: calculator}, nil
	default:
		return nil, ErrUnsupportedCurve
	}
}

// Pack serializes the tag byte followed by the fixed-width calculator slot.
func (s *SwapCurve) Pack(dst []byte) error {
	if len(dst) < SwapCurveLen {
		return ErrMalformedState
	}
	dst[0] = byte(s.Type)
	slot := dst[1 : 1+calculatorSlotLen]
	for i := range slot {
		slot[i] = 0
	}
	return s.Calculator.Pack(slot)
}

// Bytes packs the curve into a fresh buffer.
func (s *SwapCurve) Bytes() ([]byte, error) {
	buf := make([]byte, SwapCurveLen)
	if err := s.Pack(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnpackSwapCurve decodes a tagged curve record.
func UnpackSwapCurve(src []byte) (*SwapCurve, error) {
	if len(src) < SwapCurveLen {
		return nil, ErrMalformedState
	}
	slot := src[1 : 1+calculatorSlotLen]
	switch CurveType(src[0]) {
	case CurveTypeConstantPrice:
		calc, err := UnpackConstantPriceCurve(slot)
		if err != nil {
			return nil, err
		}
		return &SwapCurve{Type: CurveTypeConstantPrice, Calculator: calc}, nil
	case CurveTypeRedemptionRate:
		calc, err := UnpackRedemptionRateCurve(slot)
		if err != nil {
			return nil, err
		}
		return &SwapCurve{Type: CurveTypeRedemptionRate, Calculator: calc}, nil
	default:
		return nil, ErrUnsupportedCurve
	}
}
