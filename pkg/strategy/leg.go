// 文件: pkg/strategy/leg.go
// 策略腿 (Leg) 与策略 (Strategy)

package strategy

import (
	"encoding/json"
	"fmt"

	"optlab.com/pkg/pricing"
)

// Instrument 腿的品种
type Instrument int

const (
	InstrumentCall Instrument = iota
	InstrumentPut
	InstrumentStock
)

func (i Instrument) String() string {
	switch i {
	case InstrumentCall:
		return "Call"
	case InstrumentPut:
		return "Put"
	case InstrumentStock:
		return "Stock"
	}
	return "Unknown"
}

// ParseInstrument 不认识的品种返回 false，调用方丢弃该腿
func ParseInstrument(s string) (Instrument, bool) {
	switch s {
	case "Call", "call", "CALL":
		return InstrumentCall, true
	case "Put", "put", "PUT":
		return InstrumentPut, true
	case "Stock", "stock", "STOCK":
		return InstrumentStock, true
	}
	return 0, false
}

// OptionKind 期权腿对应的定价类型，股票腿返回 false
func (i Instrument) OptionKind() (pricing.OptionKind, bool) {
	switch i {
	case InstrumentCall:
		return pricing.Call, true
	case InstrumentPut:
		return pricing.Put, true
	}
	return 0, false
}

// Side 多空方向
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "Short"
	}
	return "Long"
}

// Sign 多头 +1，空头 -1
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// ParseSide 解析多空方向
func ParseSide(s string) (Side, bool) {
	switch s {
	case "Long", "long", "LONG", "buy", "Buy":
		return Long, true
	case "Short", "short", "SHORT", "sell", "Sell":
		return Short, true
	}
	return 0, false
}

// Leg 一条腿
//
// 股票腿: Strike 表示开仓价，Premium 忽略。
// 值类型传递，构建后不再修改。
type Leg struct {
	Strike     float64    `json:"strike"`
	Premium    float64    `json:"premium"`
	Instrument Instrument `json:"-"`
	Side       Side       `json:"-"`
}

// NewLeg 创建并校验一条腿
func NewLeg(inst Instrument, side Side, strike, premium float64) (Leg, error) {
	if strike <= 0 {
		return Leg{}, fmt.Errorf("%w: leg strike must be positive, got %v", pricing.ErrInvalidParameter, strike)
	}
	if premium < 0 {
		return Leg{}, fmt.Errorf("%w: leg premium must not be negative, got %v", pricing.ErrInvalidParameter, premium)
	}
	if inst == InstrumentStock {
		premium = 0
	}
	return Leg{Strike: strike, Premium: premium, Instrument: inst, Side: side}, nil
}

// LegSpec 线上格式，与原始看板一致: {"strike","premium","type","position"}
type LegSpec struct {
	Strike   float64 `json:"strike"`
	Premium  float64 `json:"premium"`
	Type     string  `json:"type"`
	Position string  `json:"position"`
}

// Spec 转成线上格式
func (l Leg) Spec() LegSpec {
	return LegSpec{
		Strike:   l.Strike,
		Premium:  l.Premium,
		Type:     l.Instrument.String(),
		Position: l.Side.String(),
	}
}

// MarshalJSON 输出可读的 type/position
func (l Leg) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Spec())
}

// UnmarshalJSON 读回 MarshalJSON 的输出，品种或方向不认识时报错
func (l *Leg) UnmarshalJSON(data []byte) error {
	var spec LegSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	inst, ok := ParseInstrument(spec.Type)
	if !ok {
		return fmt.Errorf("%w: unknown leg type %q", pricing.ErrInvalidParameter, spec.Type)
	}
	side, ok := ParseSide(spec.Position)
	if !ok {
		return fmt.Errorf("%w: unknown leg position %q", pricing.ErrInvalidParameter, spec.Position)
	}
	*l = Leg{Strike: spec.Strike, Premium: spec.Premium, Instrument: inst, Side: side}
	return nil
}

// ParseLegs 把线上格式转成腿
// 品种或方向不认识的腿直接跳过 (不报错)，数值非法则报错
func ParseLegs(specs []LegSpec) ([]Leg, error) {
	legs := make([]Leg, 0, len(specs))
	for i, spec := range specs {
		inst, ok := ParseInstrument(spec.Type)
		if !ok {
			continue
		}
		side, ok := ParseSide(spec.Position)
		if !ok {
			continue
		}
		leg, err := NewLeg(inst, side, spec.Strike, spec.Premium)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// Strategy 有序的腿集合，顺序只影响展示
type Strategy struct {
	Name string `json:"name"`
	Legs []Leg  `json:"legs"`
}

// Strikes 所有腿的行权价 (股票腿为开仓价)
func (s Strategy) Strikes() []float64 {
	out := make([]float64, 0, len(s.Legs))
	for _, l := range s.Legs {
		out = append(out, l.Strike)
	}
	return out
}
