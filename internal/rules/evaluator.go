// Package rules evaluates a watcher's rule set against consecutive product
// snapshots.
package rules

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopassist/watchd/internal/watcher"
)

// Evaluate compares the current snapshot against the previous one under the
// given rules and returns the alert events that fire. It is pure: no side
// effects, identical inputs yield identical outputs. Event IDs are left
// empty for the caller to assign.
func Evaluate(w watcher.Watcher, current watcher.ProductSnapshot, previous *watcher.ProductSnapshot, now time.Time) []watcher.AlertEvent {
	var events []watcher.AlertEvent

	if e := evaluatePrice(w, current, previous, now); e != nil {
		events = append(events, *e)
	}
	if e := evaluateStock(w, current, previous, now); e != nil {
		events = append(events, *e)
	}
	events = append(events, evaluateSizes(w, current, previous, now)...)

	return events
}

func evaluatePrice(w watcher.Watcher, current watcher.ProductSnapshot, previous *watcher.ProductSnapshot, now time.Time) *watcher.AlertEvent {
	rule := w.Rules.Price
	if rule == nil || current.Price == nil {
		return nil
	}
	price := *current.Price

	var prevPrice *float64
	if previous != nil {
		prevPrice = previous.Price
	}

	switch rule.Mode {
	case watcher.PriceBelow:
		// Level-triggered: re-fires every check while the condition holds.
		if rule.Value != nil && price < *rule.Value {
			return priceEvent(w, current, prevPrice, now,
				fmt.Sprintf("%s price %s is below your threshold %s",
					title(w, current), formatPrice(price, current.Currency), formatPrice(*rule.Value, current.Currency)))
		}
	case watcher.PriceAbove:
		if rule.Value != nil && price > *rule.Value {
			return priceEvent(w, current, prevPrice, now,
				fmt.Sprintf("%s price %s is above your threshold %s",
					title(w, current), formatPrice(price, current.Currency), formatPrice(*rule.Value, current.Currency)))
		}
	case watcher.PriceChange:
		if prevPrice == nil || *prevPrice == price {
			return nil
		}
		if rule.Percent != nil {
			delta := math.Abs(price-*prevPrice) / *prevPrice * 100
			if delta < *rule.Percent {
				return nil
			}
		}
		return priceEvent(w, current, prevPrice, now,
			fmt.Sprintf("%s price changed from %s to %s",
				title(w, current), formatPrice(*prevPrice, current.Currency), formatPrice(price, current.Currency)))
	}
	return nil
}

func evaluateStock(w watcher.Watcher, current watcher.ProductSnapshot, previous *watcher.ProductSnapshot, now time.Time) *watcher.AlertEvent {
	if !w.Rules.BackInStock {
		return nil
	}
	// Strictly edge-triggered on false -> true. A first-ever check or an
	// unknown previous state never fires; "unknown -> true" is not a restock.
	if previous == nil || previous.InStock == nil || *previous.InStock {
		return nil
	}
	if current.InStock == nil || !*current.InStock {
		return nil
	}
	return &watcher.AlertEvent{
		WatcherID: w.ID,
		Type:      watcher.AlertBackInStock,
		Title:     title(w, current),
		URL:       w.URL,
		Previous:  "false",
		Current:   "true",
		Message:   fmt.Sprintf("%s is back in stock", title(w, current)),
		At:        now,
	}
}

func evaluateSizes(w watcher.Watcher, current watcher.ProductSnapshot, previous *watcher.ProductSnapshot, now time.Time) []watcher.AlertEvent {
	if len(w.Rules.Sizes) == 0 {
		return nil
	}
	// No prior snapshot means "no sizes known": first check may fire,
	// asymmetric with the stock rule by design.
	var events []watcher.AlertEvent
	for _, label := range w.Rules.Sizes {
		if !current.HasSize(label) || previous.HasSize(label) {
			continue
		}
		events = append(events, watcher.AlertEvent{
			WatcherID: w.ID,
			Type:      watcher.AlertSizeAvailable,
			Title:     title(w, current),
			URL:       w.URL,
			Current:   label,
			Message:   fmt.Sprintf("size %s of %s is now available", label, title(w, current)),
			At:        now,
		})
	}
	return events
}

func priceEvent(w watcher.Watcher, current watcher.ProductSnapshot, prevPrice *float64, now time.Time, message string) *watcher.AlertEvent {
	e := &watcher.AlertEvent{
		WatcherID: w.ID,
		Type:      watcher.AlertPriceChange,
		Title:     title(w, current),
		URL:       w.URL,
		Current:   formatAmount(*current.Price),
		Message:   message,
		At:        now,
	}
	if prevPrice != nil {
		e.Previous = formatAmount(*prevPrice)
	}
	return e
}

func title(w watcher.Watcher, current watcher.ProductSnapshot) string {
	if current.Title != "" {
		return current.Title
	}
	if w.Name != "" {
		return w.Name
	}
	return w.URL
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64, currency string) string {
	if currency == "" {
		return formatAmount(v)
	}
	return formatAmount(v) + " " + currency
}
