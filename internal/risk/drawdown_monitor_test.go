package risk

import "testing"

func TestDrawdownMonitorTracksNewPeak(t *testing.T) {
	m := NewDrawdownMonitor(0.15)
	if dd, reason := m.Update("portfolio", 100); dd != 0 || reason != "" {
		t.Fatalf("first observation should set the peak with no drawdown, got dd=%v reason=%q", dd, reason)
	}
	if dd, reason := m.Update("portfolio", 110); dd != 0 || reason != "" {
		t.Fatalf("new peak should reset drawdown, got dd=%v reason=%q", dd, reason)
	}
}

func TestDrawdownMonitorHaltsBeyondThreshold(t *testing.T) {
	m := NewDrawdownMonitor(0.15)
	m.Update("portfolio", 100)
	dd, reason := m.Update("portfolio", 80)
	if dd < 0.15 {
		t.Fatalf("expected drawdown > 15%%, got %v", dd)
	}
	if reason == "" {
		t.Fatalf("expected a halt reason once drawdown exceeds threshold")
	}
}

func TestDrawdownMonitorSilentUnderThreshold(t *testing.T) {
	m := NewDrawdownMonitor(0.15)
	m.Update("portfolio", 100)
	_, reason := m.Update("portfolio", 95)
	if reason != "" {
		t.Fatalf("expected no halt reason for a 5%% drawdown, got %q", reason)
	}
}

func TestDrawdownMonitorDefaultThreshold(t *testing.T) {
	m := NewDrawdownMonitor(0)
	if m.threshold != defaultDrawdownHaltThreshold {
		t.Fatalf("expected default threshold %v, got %v", defaultDrawdownHaltThreshold, m.threshold)
	}
}
