package workflow

import (
	"github.com/shopspring/decimal"
)

// Source identifies which store an observation came from. Precedence when
// values disagree: basic (the warehouse actually shipped it), then
// procurement, then order.
type Source string

const (
	SourceOrder       Source = "order"
	SourceProcurement Source = "procurement"
	SourceBasic       Source = "basic"
)

// FieldKind selects normalization. Amounts are money and round half-up to
// 2dp before comparison; quantities compare raw.
type FieldKind string

const (
	FieldQty    FieldKind = "qty"
	FieldAmount FieldKind = "amount"
)

// epsilon bounds float noise accumulated by the upstream systems. Values
// closer than this are the same value.
var epsilon = decimal.New(1, -9)

type Observation struct {
	Source  Source
	Value   decimal.Decimal
	Present bool
}

type Resolution struct {
	Canonical       decimal.Decimal
	CanonicalSource Source
	// Divergent lists present sources whose value differs from the
	// canonical one beyond epsilon. Empty means the stores agree.
	Divergent []Source
}

// RoundAmount normalizes a money value to 2dp, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func normalize(kind FieldKind, d decimal.Decimal) decimal.Decimal {
	if kind == FieldAmount {
		return RoundAmount(d)
	}
	return d
}

// Equivalent reports whether two values agree within epsilon.
func Equivalent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(epsilon) <= 0
}

var precedence = []Source{SourceBasic, SourceProcurement, SourceOrder}

// ResolveCanonical picks the canonical value for a field observed across
// stores and lists which sources diverge from it. Resolving already
// converged observations yields an empty divergent set, so repeated repair
// passes are no-ops.
func ResolveCanonical(kind FieldKind, obs []Observation) Resolution {
	bySource := make(map[Source]Observation, len(obs))
	for _, o := range obs {
		if o.Present {
			bySource[o.Source] = o
		}
	}

	var res Resolution
	for _, src := range precedence {
		if o, ok := bySource[src]; ok {
			res.Canonical = normalize(kind, o.Value)
			res.CanonicalSource = src
			break
		}
	}
	if res.CanonicalSource == "" {
		return res
	}

	for _, src := range precedence {
		o, ok := bySource[src]
		if !ok || src == res.CanonicalSource {
			continue
		}
		if !Equivalent(normalize(kind, o.Value), res.Canonical) {
			res.Divergent = append(res.Divergent, src)
		}
	}
	return res
}
