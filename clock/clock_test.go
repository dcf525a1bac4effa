package clock

import (
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Fixed(want)
	if got := c(); !got.Equal(want) {
		t.Errorf("Fixed(%v)() = %v, want %v", want, got, want)
	}
	if got := c(); !got.Equal(want) {
		t.Errorf("Fixed clock should return the same instant on repeated calls, got %v", got)
	}
}

func TestDefaultIsUTC(t *testing.T) {
	c := Default()
	if got := c().Location(); got != time.UTC {
		t.Errorf("Default()().Location() = %v, want UTC", got)
	}
}

func TestEpochMs(t *testing.T) {
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fixed(want)
	if got := c.EpochMs(); got != want.UnixMilli() {
		t.Errorf("EpochMs() = %d, want %d", got, want.UnixMilli())
	}
}
