package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopassist/watchd/internal/watcher"
)

var testNow = time.Unix(1700000000, 0).UTC()

func floatPtr(v float64) *float64 { return &v }
func boolPtr(b bool) *bool        { return &b }

func priceWatcher(mode watcher.PriceRuleMode, value, percent *float64) watcher.Watcher {
	return watcher.Watcher{
		ID:  "w-1",
		URL: "https://shop.example.com/p/1",
		Rules: watcher.RuleSet{
			Price: &watcher.PriceRule{Mode: mode, Value: value, Percent: percent},
		},
	}
}

func snapWithPrice(v float64) watcher.ProductSnapshot {
	return watcher.ProductSnapshot{Title: "Widget", Price: floatPtr(v), Currency: "USD", OK: true}
}

func TestBelowRuleFiresWithPreviousValues(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceBelow, floatPtr(100), nil)
	prev := snapWithPrice(150)

	events := Evaluate(w, snapWithPrice(89.99), &prev, testNow)
	require.Len(t, events, 1)
	require.Equal(t, watcher.AlertPriceChange, events[0].Type)
	require.Equal(t, "150", events[0].Previous)
	require.Equal(t, "89.99", events[0].Current)
	require.Equal(t, "w-1", events[0].WatcherID)
}

func TestBelowRuleIsLevelTriggered(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceBelow, floatPtr(100), nil)
	prev := snapWithPrice(89.99)

	// Still below: fires again even though the price did not move.
	events := Evaluate(w, snapWithPrice(89.99), &prev, testNow)
	require.Len(t, events, 1)

	// No previous snapshot at all: still fires.
	events = Evaluate(w, snapWithPrice(89.99), nil, testNow)
	require.Len(t, events, 1)

	// At or above the threshold: silent.
	events = Evaluate(w, snapWithPrice(100), &prev, testNow)
	require.Empty(t, events)
}

func TestAboveRule(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceAbove, floatPtr(200), nil)
	events := Evaluate(w, snapWithPrice(210), nil, testNow)
	require.Len(t, events, 1)

	events = Evaluate(w, snapWithPrice(200), nil, testNow)
	require.Empty(t, events)
}

func TestChangeRuleRequiresPrevious(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceChange, nil, nil)
	require.Empty(t, Evaluate(w, snapWithPrice(50), nil, testNow))

	prev := snapWithPrice(50)
	require.Empty(t, Evaluate(w, snapWithPrice(50), &prev, testNow), "no change, no alert")

	events := Evaluate(w, snapWithPrice(50.01), &prev, testNow)
	require.Len(t, events, 1, "any change fires when percent is unset")
}

func TestChangeRulePercentThreshold(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceChange, nil, floatPtr(10))
	prev := snapWithPrice(100)

	require.Empty(t, Evaluate(w, snapWithPrice(95), &prev, testNow), "5% below 10% threshold")

	events := Evaluate(w, snapWithPrice(89), &prev, testNow)
	require.Len(t, events, 1, "11% drop crosses threshold")

	events = Evaluate(w, snapWithPrice(112), &prev, testNow)
	require.Len(t, events, 1, "threshold applies to absolute delta")
}

func TestPriceRuleIgnoresUnknownPrice(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceBelow, floatPtr(100), nil)
	current := watcher.ProductSnapshot{Title: "Widget", OK: true}
	require.Empty(t, Evaluate(w, current, nil, testNow))
}

func stockWatcher() watcher.Watcher {
	return watcher.Watcher{
		ID:    "w-2",
		URL:   "https://shop.example.com/p/2",
		Rules: watcher.RuleSet{BackInStock: true},
	}
}

func TestStockRuleFiresOnEdge(t *testing.T) {
	t.Parallel()

	prev := watcher.ProductSnapshot{InStock: boolPtr(false), OK: true}
	current := watcher.ProductSnapshot{Title: "Sneaker", InStock: boolPtr(true), OK: true}

	events := Evaluate(stockWatcher(), current, &prev, testNow)
	require.Len(t, events, 1)
	require.Equal(t, watcher.AlertBackInStock, events[0].Type)
	require.Equal(t, "false", events[0].Previous)
	require.Equal(t, "true", events[0].Current)
}

func TestStockRuleSilentCases(t *testing.T) {
	t.Parallel()

	inStock := watcher.ProductSnapshot{InStock: boolPtr(true), OK: true}

	// First-ever check never fires.
	require.Empty(t, Evaluate(stockWatcher(), inStock, nil, testNow))

	// Already in stock: no edge.
	prevTrue := watcher.ProductSnapshot{InStock: boolPtr(true), OK: true}
	require.Empty(t, Evaluate(stockWatcher(), inStock, &prevTrue, testNow))

	// Unknown -> true is not a restock edge.
	prevUnknown := watcher.ProductSnapshot{OK: true}
	require.Empty(t, Evaluate(stockWatcher(), inStock, &prevUnknown, testNow))

	// false -> unknown is not an edge either.
	prevFalse := watcher.ProductSnapshot{InStock: boolPtr(false), OK: true}
	unknown := watcher.ProductSnapshot{OK: true}
	require.Empty(t, Evaluate(stockWatcher(), unknown, &prevFalse, testNow))
}

func TestSizeRuleFiresOnNewLabels(t *testing.T) {
	t.Parallel()

	w := watcher.Watcher{
		ID:    "w-3",
		URL:   "https://shop.example.com/p/3",
		Rules: watcher.RuleSet{Sizes: []string{"M", "L"}},
	}
	prev := watcher.ProductSnapshot{Sizes: []string{"S", "M"}, OK: true}
	current := watcher.ProductSnapshot{Title: "Jacket", Sizes: []string{"M", "L"}, OK: true}

	events := Evaluate(w, current, &prev, testNow)
	require.Len(t, events, 1, "M was already present, only L is new")
	require.Equal(t, watcher.AlertSizeAvailable, events[0].Type)
	require.Equal(t, "L", events[0].Current)
}

func TestSizeRuleFiresOnFirstCheck(t *testing.T) {
	t.Parallel()

	w := watcher.Watcher{
		ID:    "w-3",
		URL:   "https://shop.example.com/p/3",
		Rules: watcher.RuleSet{Sizes: []string{"M"}},
	}
	current := watcher.ProductSnapshot{Sizes: []string{"M"}, OK: true}

	events := Evaluate(w, current, nil, testNow)
	require.Len(t, events, 1, "no prior snapshot means no sizes known")
}

func TestMultipleRulesFireIndependently(t *testing.T) {
	t.Parallel()

	w := watcher.Watcher{
		ID:  "w-4",
		URL: "https://shop.example.com/p/4",
		Rules: watcher.RuleSet{
			Price:       &watcher.PriceRule{Mode: watcher.PriceBelow, Value: floatPtr(100)},
			BackInStock: true,
			Sizes:       []string{"XL"},
		},
	}
	prev := watcher.ProductSnapshot{Price: floatPtr(150), InStock: boolPtr(false), Sizes: []string{"S"}, OK: true}
	current := watcher.ProductSnapshot{
		Title:   "Coat",
		Price:   floatPtr(80),
		InStock: boolPtr(true),
		Sizes:   []string{"S", "XL"},
		OK:      true,
	}

	events := Evaluate(w, current, &prev, testNow)
	require.Len(t, events, 3)
	types := map[watcher.AlertType]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	require.True(t, types[watcher.AlertPriceChange])
	require.True(t, types[watcher.AlertBackInStock])
	require.True(t, types[watcher.AlertSizeAvailable])
}

func TestEvaluateIsPure(t *testing.T) {
	t.Parallel()

	w := priceWatcher(watcher.PriceBelow, floatPtr(100), nil)
	prev := snapWithPrice(150)
	current := snapWithPrice(89.99)

	first := Evaluate(w, current, &prev, testNow)
	second := Evaluate(w, current, &prev, testNow)
	require.Equal(t, first, second)
}
