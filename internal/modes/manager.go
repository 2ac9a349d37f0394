// Package modes resolves the requested trading mode against the safety
// flags. The effective mode can only be downgraded, never upgraded: LIVE
// and DUAL require the operator to have armed live trading explicitly.
package modes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/risk"
)

// SafetyFlags are the environment switches that gate live execution.
type SafetyFlags struct {
	LiveTrading   bool
	DryRun        bool
	AllowDualMode bool
}

// State is a snapshot of the resolved mode. Version increments on every
// change so log lines can be correlated with the mode in force.
type State struct {
	Requested intent.Mode `json:"requested"`
	Effective intent.Mode `json:"effective"`
	RiskMode  risk.Mode   `json:"risk_mode"`
	Reason    string      `json:"reason,omitempty"`
	Version   int64       `json:"version"`
	ChangedAt time.Time   `json:"changed_at"`
}

// Manager holds the current mode state.
type Manager struct {
	mu    sync.Mutex
	flags SafetyFlags
	state State
}

func NewManager(flags SafetyFlags, requested intent.Mode, riskMode risk.Mode) *Manager {
	m := &Manager{flags: flags}
	m.state = m.resolve(requested, riskMode, 1)
	return m
}

// Set re-resolves the requested mode against the safety flags and
// returns the new state. A request the flags don't permit is downgraded,
// with the downgrade reason recorded.
func (m *Manager) Set(requested intent.Mode) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = m.resolve(requested, m.state.RiskMode, m.state.Version+1)
	return m.state
}

func (m *Manager) Effective() intent.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Effective
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) resolve(requested intent.Mode, riskMode risk.Mode, version int64) State {
	st := State{
		Requested: requested,
		Effective: requested,
		RiskMode:  riskMode,
		Version:   version,
		ChangedAt: time.Now().UTC(),
	}

	switch requested {
	case intent.Paper, intent.Historical:
		return st
	case intent.Dual:
		if !m.flags.AllowDualMode {
			st.Effective = intent.Live
			st.Reason = "DUAL requested but ALLOW_DUAL_MODE=false, trying LIVE"
		}
	case intent.Live:
		// fall through to the live gate below
	default:
		st.Effective = intent.Paper
		st.Reason = fmt.Sprintf("unknown mode %q, running PAPER", requested)
		return st
	}

	if st.Effective == intent.Live || st.Effective == intent.Dual {
		switch {
		case !m.flags.LiveTrading:
			st.Effective = intent.Paper
			st.Reason = joinReason(st.Reason, "LIVE_TRADING=false, downgraded to PAPER")
		case m.flags.DryRun:
			st.Effective = intent.Paper
			st.Reason = joinReason(st.Reason, "DRY_RUN=true, downgraded to PAPER")
		}
	}
	return st
}

func joinReason(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "; " + next
}

// settings is the operator-facing persisted mode selection, written by
// the mode subcommand and read at startup.
type settings struct {
	RequestedMode intent.Mode `json:"requested_mode"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func settingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

// LoadRequested reads the persisted mode selection. A missing file is
// not an error; the fallback mode is returned.
func LoadRequested(dataDir string, fallback intent.Mode) (intent.Mode, error) {
	b, err := os.ReadFile(settingsPath(dataDir))
	if os.IsNotExist(err) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("read settings: %w", err)
	}
	var s settings
	if err := json.Unmarshal(b, &s); err != nil {
		return fallback, fmt.Errorf("parse settings: %w", err)
	}
	if s.RequestedMode == "" {
		return fallback, nil
	}
	return s.RequestedMode, nil
}

// SaveRequested persists the operator's mode selection.
func SaveRequested(dataDir string, mode intent.Mode) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	b, err := json.MarshalIndent(settings{RequestedMode: mode, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := settingsPath(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, settingsPath(dataDir))
}
