package domain

import "testing"

func TestParseServiceLevel(t *testing.T) {
	cases := map[string]ServiceLevel{
		"emergency":       ServiceLevelEmergency,
		" URGENT ":        ServiceLevelUrgent,
		"SameDay":         ServiceLevelSameDay,
		"same_day":        ServiceLevelSameDay,
		"same-day":        ServiceLevelSameDay,
		"NEXT DAY":        ServiceLevelNextDay,
		"scheduled":       ServiceLevelScheduled,
		"scheduled-route": ServiceLevelScheduled,
	}
	for raw, want := range cases {
		got, err := ParseServiceLevel(raw)
		if err != nil {
			t.Fatalf("ParseServiceLevel(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseServiceLevel(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseServiceLevel("warp"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseTerrain(t *testing.T) {
	got, err := ParseTerrain(" Mountainous ")
	if err != nil || got != TerrainMountainous {
		t.Fatalf("ParseTerrain = %q, %v", got, err)
	}
	if _, err := ParseTerrain("lava"); err == nil {
		t.Fatalf("expected error for unknown terrain")
	}
	if _, err := ParseTerrain(""); err == nil {
		t.Fatalf("expected error for blank terrain")
	}
}

func TestQuoteComponentsOrder(t *testing.T) {
	quote := Quote{BasePrice: 1, MileageCharge: 2, TerrainFee: 3, MultiStopFee: 4, HeavyItemFee: 5, RushFee: 6, TotalPrice: 21}
	var sum int64
	for i, line := range quote.Components() {
		if line.Amount != int64(i+1) {
			t.Fatalf("line %d (%s) out of order", i, line.Name)
		}
		sum += line.Amount
	}
	if sum != quote.TotalPrice {
		t.Fatalf("components sum %d, total %d", sum, quote.TotalPrice)
	}
}

func TestPricingTableValidate(t *testing.T) {
	table := DefaultPricingTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	clone := table.Clone()
	delete(clone.BasePrices, ServiceLevelUrgent)
	if err := clone.Validate(); err == nil {
		t.Fatalf("expected missing base price to fail validation")
	}
	if _, ok := table.BasePrices[ServiceLevelUrgent]; !ok {
		t.Fatalf("Clone must not share maps with the original")
	}
}
