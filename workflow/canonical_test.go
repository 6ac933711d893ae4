package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolveCanonicalBasicWins(t *testing.T) {
	res := ResolveCanonical(FieldQty, []Observation{
		{Source: SourceOrder, Value: dec("10"), Present: true},
		{Source: SourceProcurement, Value: dec("12"), Present: true},
		{Source: SourceBasic, Value: dec("11"), Present: true},
	})
	if res.CanonicalSource != SourceBasic {
		t.Fatalf("canonical source = %s, want basic", res.CanonicalSource)
	}
	if !res.Canonical.Equal(dec("11")) {
		t.Errorf("canonical = %s, want 11", res.Canonical)
	}
	if len(res.Divergent) != 2 {
		t.Errorf("divergent = %v, want order and procurement", res.Divergent)
	}
}

func TestResolveCanonicalFallbackOrder(t *testing.T) {
	res := ResolveCanonical(FieldQty, []Observation{
		{Source: SourceOrder, Value: dec("10"), Present: true},
		{Source: SourceProcurement, Value: dec("12"), Present: true},
		{Source: SourceBasic, Present: false},
	})
	if res.CanonicalSource != SourceProcurement {
		t.Fatalf("canonical source = %s, want procurement", res.CanonicalSource)
	}

	res = ResolveCanonical(FieldQty, []Observation{
		{Source: SourceOrder, Value: dec("10"), Present: true},
	})
	if res.CanonicalSource != SourceOrder {
		t.Fatalf("canonical source = %s, want order", res.CanonicalSource)
	}
	if len(res.Divergent) != 0 {
		t.Errorf("single observation cannot diverge: %v", res.Divergent)
	}
}

func TestResolveCanonicalEpsilonTolerance(t *testing.T) {
	// Differences at or below 1e-9 are noise, not discrepancies.
	res := ResolveCanonical(FieldQty, []Observation{
		{Source: SourceBasic, Value: dec("10"), Present: true},
		{Source: SourceOrder, Value: dec("10.000000001"), Present: true},
	})
	if len(res.Divergent) != 0 {
		t.Errorf("1e-9 delta flagged divergent: %v", res.Divergent)
	}

	res = ResolveCanonical(FieldQty, []Observation{
		{Source: SourceBasic, Value: dec("10"), Present: true},
		{Source: SourceOrder, Value: dec("10.00000001"), Present: true},
	})
	if len(res.Divergent) != 1 {
		t.Errorf("1e-8 delta should be divergent: %v", res.Divergent)
	}
}

func TestResolveCanonicalIdempotent(t *testing.T) {
	// Feeding the canonical value back in converges: no divergent sources.
	obs := []Observation{
		{Source: SourceOrder, Value: dec("7.5"), Present: true},
		{Source: SourceProcurement, Value: dec("7.5"), Present: true},
		{Source: SourceBasic, Value: dec("7.5"), Present: true},
	}
	res := ResolveCanonical(FieldQty, obs)
	if len(res.Divergent) != 0 {
		t.Fatalf("converged stores reported divergent: %v", res.Divergent)
	}
}

func TestResolveCanonicalConvergence(t *testing.T) {
	obs := []Observation{
		{Source: SourceOrder, Value: dec("3"), Present: true},
		{Source: SourceProcurement, Value: dec("4"), Present: true},
		{Source: SourceBasic, Value: dec("5"), Present: true},
	}
	first := ResolveCanonical(FieldQty, obs)

	// Simulate applying the repair, then rescan.
	repaired := []Observation{
		{Source: SourceOrder, Value: first.Canonical, Present: true},
		{Source: SourceProcurement, Value: first.Canonical, Present: true},
		{Source: SourceBasic, Value: dec("5"), Present: true},
	}
	second := ResolveCanonical(FieldQty, repaired)
	if len(second.Divergent) != 0 {
		t.Errorf("rescan after repair still divergent: %v", second.Divergent)
	}
	if !second.Canonical.Equal(first.Canonical) {
		t.Errorf("canonical moved: %s -> %s", first.Canonical, second.Canonical)
	}
}

func TestResolveCanonicalAmountRounding(t *testing.T) {
	// 3x10.005 + 2x5.005 = 40.025, half-up to 40.03.
	total := dec("10.005").Mul(dec("3")).Add(dec("5.005").Mul(dec("2")))
	res := ResolveCanonical(FieldAmount, []Observation{
		{Source: SourceBasic, Value: total, Present: true},
		{Source: SourceOrder, Value: dec("40.03"), Present: true},
	})
	if !res.Canonical.Equal(dec("40.03")) {
		t.Errorf("canonical = %s, want 40.03", res.Canonical)
	}
	if len(res.Divergent) != 0 {
		t.Errorf("rounded amounts should agree: %v", res.Divergent)
	}
}

func TestResolveCanonicalNoObservations(t *testing.T) {
	res := ResolveCanonical(FieldQty, nil)
	if res.CanonicalSource != "" {
		t.Errorf("empty input produced source %s", res.CanonicalSource)
	}
}

func TestRoundAmountHalfUp(t *testing.T) {
	cases := map[string]string{
		"40.025":  "40.03",
		"40.024":  "40.02",
		"-40.025": "-40.03",
		"0.005":   "0.01",
	}
	for in, want := range cases {
		if got := RoundAmount(dec(in)); !got.Equal(dec(want)) {
			t.Errorf("RoundAmount(%s) = %s, want %s", in, got, want)
		}
	}
}
