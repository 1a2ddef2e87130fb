package segue

import (
	"fmt"
	"testing"
)

func TestIntentCachePutGet(t *testing.T) {
	c := newIntentCache(4)
	d := IntentDecision{Intent: IntentJiraCreation, Confidence: 0.9, Source: SourceLLM}
	c.put("k1", d)

	got, ok := c.get("k1")
	if !ok || got.Intent != IntentJiraCreation {
		t.Errorf("get = %+v, %v", got, ok)
	}
	if _, ok := c.get("missing"); ok {
		t.Error("missing key reported present")
	}
}

func TestIntentCacheFIFOEviction(t *testing.T) {
	c := newIntentCache(3)
	for i := 0; i < 4; i++ {
		c.put(fmt.Sprintf("k%d", i), IntentDecision{Confidence: float64(i)})
	}

	if _, ok := c.get("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d evicted prematurely", i)
		}
	}
	if c.len() != 3 {
		t.Errorf("len = %d", c.len())
	}
}

func TestIntentCacheReinsertKeepsSlot(t *testing.T) {
	c := newIntentCache(2)
	c.put("a", IntentDecision{Confidence: 0.1})
	c.put("b", IntentDecision{Confidence: 0.2})
	c.put("a", IntentDecision{Confidence: 0.9}) // update, not a new slot

	if c.len() != 2 {
		t.Errorf("len = %d", c.len())
	}
	if got, _ := c.get("a"); got.Confidence != 0.9 {
		t.Errorf("a = %+v", got)
	}
	if _, ok := c.get("b"); !ok {
		t.Error("b evicted by an update")
	}
}

func TestIntentCacheZeroCapacity(t *testing.T) {
	c := newIntentCache(0)
	c.put("a", IntentDecision{})
	if _, ok := c.get("a"); !ok {
		t.Error("zero capacity should fall back to the default, not drop writes")
	}
}
