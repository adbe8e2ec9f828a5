package transport

import "time"

// AlertLevel grades how long the connection has been down. The UI maps these
// to a graduated banner instead of flashing a hard failure.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertInfo
	AlertWarn
	AlertError
)

func (l AlertLevel) String() string {
	switch l {
	case AlertInfo:
		return "info"
	case AlertWarn:
		return "warning"
	case AlertError:
		return "error"
	default:
		return "none"
	}
}

type AlertThresholds struct {
	Grace time.Duration
	Warn  time.Duration
	Error time.Duration
	// InitialLoadGrace suppresses alerts right after mount so a slow first
	// connect does not flash an error.
	InitialLoadGrace time.Duration
}

func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Grace:            5 * time.Second,
		Warn:             15 * time.Second,
		Error:            30 * time.Second,
		InitialLoadGrace: 8 * time.Second,
	}
}

// AlertMonitor derives the alert level from elapsed disconnect time. Levels
// only move forward while disconnected (elapsed time is monotonic) and reset
// to none the moment the transport reports connected.
type AlertMonitor struct {
	thresholds    AlertThresholds
	startedAt     time.Time
	everConnected bool
}

func NewAlertMonitor(thresholds AlertThresholds, now time.Time) *AlertMonitor {
	return &AlertMonitor{thresholds: thresholds, startedAt: now}
}

func (m *AlertMonitor) Level(now time.Time, connected bool, disconnectedSince time.Time) AlertLevel {
	if connected {
		m.everConnected = true
		return AlertNone
	}
	if !m.everConnected && now.Sub(m.startedAt) < m.thresholds.InitialLoadGrace {
		return AlertNone
	}
	if disconnectedSince.IsZero() {
		return AlertNone
	}

	elapsed := now.Sub(disconnectedSince)
	switch {
	case elapsed >= m.thresholds.Error:
		return AlertError
	case elapsed >= m.thresholds.Warn:
		return AlertWarn
	case elapsed >= m.thresholds.Grace:
		return AlertInfo
	default:
		return AlertNone
	}
}
