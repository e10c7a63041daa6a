// 文件: pkg/strategy/builder.go
// 常见策略模板
//
// 策略名到构建规则是一个封闭的枚举表，未知策略返回空腿集合。

package strategy

import (
	"fmt"

	"optlab.com/pkg/pricing"
)

// Kind 策略模板
type Kind int

const (
	KindUnknown Kind = iota
	KindStraddle
	KindIronCondor
	KindBullCallSpread
	KindBearPutSpread
	KindLongStrangle
)

var kindNames = map[Kind]string{
	KindStraddle:       "Straddle",
	KindIronCondor:     "Iron Condor",
	KindBullCallSpread: "Bull Call Spread",
	KindBearPutSpread:  "Bear Put Spread",
	KindLongStrangle:   "Long Strangle",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ParseKind 按展示名解析，不认识的返回 KindUnknown
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Kinds 所有已知模板，按枚举顺序
func Kinds() []Kind {
	return []Kind{KindStraddle, KindIronCondor, KindBullCallSpread, KindBearPutSpread, KindLongStrangle}
}

// DefaultWidth 宽度与距离未设置时的默认值
const DefaultWidth = 5.0

// BuildParams 模板参数
// Width / Distance 为 nil 时取 DefaultWidth，显式给出则必须为正
type BuildParams struct {
	Width        *float64 `json:"width,omitempty"`    // 价差/铁鹰翼宽
	Distance     *float64 `json:"distance,omitempty"` // 宽跨式距现价的距离
	PremiumLong  float64  `json:"premium_long"`       // 买入腿权利金
	PremiumShort float64  `json:"premium_short"`      // 卖出腿权利金
	PremiumCall  float64  `json:"premium_call"`       // 跨式看涨腿
	PremiumPut   float64  `json:"premium_put"`        // 跨式看跌腿
	Premium      float64  `json:"premium"`            // 宽跨式两腿
}

// DefaultBuildParams 宽度与距离默认 5，权利金默认 0
func DefaultBuildParams() BuildParams {
	w, d := DefaultWidth, DefaultWidth
	return BuildParams{Width: &w, Distance: &d}
}

func positiveOr(v *float64, name string) (float64, error) {
	if v == nil {
		return DefaultWidth, nil
	}
	if *v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %v", pricing.ErrInvalidParameter, name, *v)
	}
	return *v, nil
}

// legDef 模板生成的腿，统一经 NewLeg 校验
type legDef struct {
	inst    Instrument
	side    Side
	strike  float64
	premium float64
}

type builderFunc func(spot float64, p BuildParams) ([]legDef, error)

var builders = map[Kind]builderFunc{
	KindStraddle:       buildStraddle,
	KindIronCondor:     buildIronCondor,
	KindBullCallSpread: buildBullCallSpread,
	KindBearPutSpread:  buildBearPutSpread,
	KindLongStrangle:   buildLongStrangle,
}

// Build 按模板生成策略
// 未知模板返回空策略且不报错；已知模板遇到非法数值 (权利金为负、宽度非正、行权价非正) 报错
func Build(kind Kind, spot float64, p BuildParams) (Strategy, error) {
	fn, ok := builders[kind]
	if !ok {
		return Strategy{Name: kind.String()}, nil
	}
	defs, err := fn(spot, p)
	if err != nil {
		return Strategy{}, fmt.Errorf("%s: %w", kind, err)
	}
	legs := make([]Leg, 0, len(defs))
	for i, d := range defs {
		leg, err := NewLeg(d.inst, d.side, d.strike, d.premium)
		if err != nil {
			return Strategy{}, fmt.Errorf("%s leg %d: %w", kind, i, err)
		}
		legs = append(legs, leg)
	}
	return Strategy{Name: kind.String(), Legs: legs}, nil
}

// 买入平值看涨 + 买入平值看跌
func buildStraddle(spot float64, p BuildParams) ([]legDef, error) {
	return []legDef{
		{InstrumentCall, Long, spot, p.PremiumCall},
		{InstrumentPut, Long, spot, p.PremiumPut},
	}, nil
}

// 卖出内侧宽跨，买入外侧保护翼
func buildIronCondor(spot float64, p BuildParams) ([]legDef, error) {
	w, err := positiveOr(p.Width, "width")
	if err != nil {
		return nil, err
	}
	return []legDef{
		{InstrumentPut, Short, spot - w, p.PremiumShort},
		{InstrumentPut, Long, spot - 2*w, p.PremiumLong},
		{InstrumentCall, Short, spot + w, p.PremiumShort},
		{InstrumentCall, Long, spot + 2*w, p.PremiumLong},
	}, nil
}

// 买入平值看涨 + 卖出虚值看涨
func buildBullCallSpread(spot float64, p BuildParams) ([]legDef, error) {
	w, err := positiveOr(p.Width, "width")
	if err != nil {
		return nil, err
	}
	return []legDef{
		{InstrumentCall, Long, spot, p.PremiumLong},
		{InstrumentCall, Short, spot + w, p.PremiumShort},
	}, nil
}

// 买入平值看跌 + 卖出虚值看跌
func buildBearPutSpread(spot float64, p BuildParams) ([]legDef, error) {
	w, err := positiveOr(p.Width, "width")
	if err != nil {
		return nil, err
	}
	return []legDef{
		{InstrumentPut, Long, spot, p.PremiumLong},
		{InstrumentPut, Short, spot - w, p.PremiumShort},
	}, nil
}

// 买入虚值看跌 + 买入虚值看涨
func buildLongStrangle(spot float64, p BuildParams) ([]legDef, error) {
	d, err := positiveOr(p.Distance, "distance")
	if err != nil {
		return nil, err
	}
	return []legDef{
		{InstrumentPut, Long, spot - d, p.Premium},
		{InstrumentCall, Long, spot + d, p.Premium},
	}, nil
}
