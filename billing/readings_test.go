package billing

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func year2025() Period {
	return Period{Start: date(2025, 1, 1), End: date(2025, 12, 31)}
}

func TestResolveReadingsClosestPair(t *testing.T) {
	readings := []Reading{
		{Date: date(2024, 6, 1), Value: 100},
		{Date: date(2024, 12, 28), Value: 480},
		{Date: date(2024, 12, 31), Value: 500},
		{Date: date(2026, 1, 2), Value: 780},
		{Date: date(2026, 3, 1), Value: 800},
	}

	rec := ResolveReadings(1, 10, readings, year2025())

	if rec.Status != StatusComplete {
		t.Fatalf("status = %s, want %s", rec.Status, StatusComplete)
	}
	if *rec.StartValue != 500 || !rec.StartDate.Equal(date(2024, 12, 31)) {
		t.Errorf("start = %v @ %v, want 500 @ 2024-12-31", *rec.StartValue, rec.StartDate)
	}
	if *rec.EndValue != 780 || !rec.EndDate.Equal(date(2026, 1, 2)) {
		t.Errorf("end = %v @ %v, want 780 @ 2026-01-02", *rec.EndValue, rec.EndDate)
	}
	if *rec.Consumption != 280 {
		t.Errorf("consumption = %v, want 280", *rec.Consumption)
	}
}

// Scenario: the meter only has readings inside the period, so the end value
// falls back to the latest available reading and is still reported complete.
func TestResolveReadingsEndFallback(t *testing.T) {
	readings := []Reading{
		{Date: date(2024, 12, 30), Value: 500},
		{Date: date(2025, 3, 1), Value: 560},
	}

	rec := ResolveReadings(1, 10, readings, year2025())

	if rec.Status != StatusComplete {
		t.Fatalf("status = %s, want %s", rec.Status, StatusComplete)
	}
	if *rec.StartValue != 500 || !rec.StartDate.Equal(date(2024, 12, 30)) {
		t.Errorf("start = %v @ %v, want 500 @ 2024-12-30", *rec.StartValue, rec.StartDate)
	}
	if *rec.EndValue != 560 || !rec.EndDate.Equal(date(2025, 3, 1)) {
		t.Errorf("end = %v @ %v, want 560 @ 2025-03-01", *rec.EndValue, rec.EndDate)
	}
	if *rec.Consumption != 60 {
		t.Errorf("consumption = %v, want 60", *rec.Consumption)
	}
}

func TestResolveReadingsStartFallback(t *testing.T) {
	readings := []Reading{
		{Date: date(2025, 2, 1), Value: 40},
		{Date: date(2025, 6, 1), Value: 90},
		{Date: date(2026, 1, 15), Value: 200},
	}

	rec := ResolveReadings(2, 11, readings, year2025())

	if *rec.StartValue != 40 || !rec.StartDate.Equal(date(2025, 2, 1)) {
		t.Errorf("start = %v @ %v, want fallback 40 @ 2025-02-01", *rec.StartValue, rec.StartDate)
	}
	if *rec.EndValue != 200 {
		t.Errorf("end = %v, want 200", *rec.EndValue)
	}
	if *rec.Consumption != 160 {
		t.Errorf("consumption = %v, want 160", *rec.Consumption)
	}
}

func TestResolveReadingsSingleReading(t *testing.T) {
	readings := []Reading{{Date: date(2025, 7, 1), Value: 123}}

	rec := ResolveReadings(3, 12, readings, year2025())

	if rec.Status != StatusComplete {
		t.Fatalf("status = %s, want %s", rec.Status, StatusComplete)
	}
	if *rec.StartValue != 123 || *rec.EndValue != 123 {
		t.Errorf("start/end = %v/%v, want 123/123", *rec.StartValue, *rec.EndValue)
	}
	if *rec.Consumption != 0 {
		t.Errorf("consumption = %v, want 0", *rec.Consumption)
	}
}

func TestResolveReadingsNoData(t *testing.T) {
	rec := ResolveReadings(4, 13, nil, year2025())

	if rec.Status != StatusMissingBoth {
		t.Fatalf("status = %s, want %s", rec.Status, StatusMissingBoth)
	}
	if rec.StartValue != nil || rec.EndValue != nil || rec.Consumption != nil {
		t.Errorf("expected nil start/end/consumption, got %v/%v/%v",
			rec.StartValue, rec.EndValue, rec.Consumption)
	}
}

// Meter rollover or a data-entry error can make the end reading smaller
// than the start reading; consumption is clamped to zero, never negative.
func TestResolveReadingsClampsNegativeConsumption(t *testing.T) {
	readings := []Reading{
		{Date: date(2024, 12, 31), Value: 900},
		{Date: date(2026, 1, 1), Value: 10},
	}

	rec := ResolveReadings(5, 14, readings, year2025())

	if *rec.Consumption != 0 {
		t.Errorf("consumption = %v, want 0", *rec.Consumption)
	}
	if rec.Status != StatusComplete {
		t.Errorf("status = %s, want %s", rec.Status, StatusComplete)
	}
}

func TestResolveReadingsUnsortedInput(t *testing.T) {
	readings := []Reading{
		{Date: date(2026, 2, 1), Value: 300},
		{Date: date(2024, 12, 31), Value: 100},
		{Date: date(2026, 1, 5), Value: 250},
		{Date: date(2024, 11, 1), Value: 50},
	}

	rec := ResolveReadings(6, 15, readings, year2025())

	if *rec.StartValue != 100 {
		t.Errorf("start = %v, want 100 (closest before period start)", *rec.StartValue)
	}
	if *rec.EndValue != 250 {
		t.Errorf("end = %v, want 250 (closest after period end)", *rec.EndValue)
	}
}

func TestResolveReadingsIsPure(t *testing.T) {
	readings := []Reading{
		{Date: date(2025, 3, 1), Value: 560},
		{Date: date(2024, 12, 30), Value: 500},
	}

	first := ResolveReadings(1, 10, readings, year2025())
	second := ResolveReadings(1, 10, readings, year2025())

	if *first.Consumption != *second.Consumption || first.Status != second.Status {
		t.Errorf("repeated resolution differs: %+v vs %+v", first, second)
	}
	if !readings[0].Date.Equal(date(2025, 3, 1)) {
		t.Error("input slice was reordered")
	}
}
