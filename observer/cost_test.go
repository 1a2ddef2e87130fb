package observer

import "testing"

func TestCalculateKnownModel(t *testing.T) {
	c := NewCostCalculator(nil)
	// gemini-2.0-flash: $0.10/M input, $0.40/M output
	got := c.Calculate("gemini-2.0-flash", 1_000_000, 500_000)
	want := 0.10 + 0.20
	if got != want {
		t.Errorf("Calculate = %v, want %v", got, want)
	}
}

func TestCalculateUnknownModel(t *testing.T) {
	c := NewCostCalculator(nil)
	if got := c.Calculate("mystery-model", 1000, 1000); got != 0.0 {
		t.Errorf("Calculate = %v, want 0", got)
	}
}

func TestCalculateOverride(t *testing.T) {
	c := NewCostCalculator(map[string]ModelPricing{
		"gpt-4o-mini": {1.00, 2.00},
		"local-llama": {0.0, 0.0},
	})
	if got := c.Calculate("gpt-4o-mini", 1_000_000, 0); got != 1.00 {
		t.Errorf("override ignored: Calculate = %v", got)
	}
	if got := c.Calculate("local-llama", 1_000_000, 1_000_000); got != 0.0 {
		t.Errorf("Calculate = %v, want 0 for free model", got)
	}
}
