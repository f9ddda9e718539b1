package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
)

// Config holds the risk thresholds.
type Config struct {
	MaxInventory  float64
	MaxVolatility float64
	MarginBuffer  float64
	TradesPerDay  int
	QuoteCurrency string
}

// Summary is the externally readable risk state snapshot.
type Summary struct {
	TradingPaused    bool    `json:"trading_paused"`
	PauseReason      string  `json:"pause_reason"`
	CurrentInventory float64 `json:"current_inventory"`
	CurrentPnL       float64 `json:"current_pnl"`
	DailyTrades      int     `json:"daily_trades"`
	MaxInventory     float64 `json:"max_inventory"`
	MaxVolatility    float64 `json:"max_volatility"`
	MarginBuffer     float64 `json:"margin_buffer"`
}

// Manager gates trading behind inventory, volatility, margin, and daily
// trade-count limits. It is a two-state machine: trading is either
// allowed or paused with a reason, and resumes only when a full
// re-evaluation comes back clean.
type Manager struct {
	cfg    Config
	logger *logrus.Logger

	mu               sync.RWMutex
	tradingPaused    bool
	pauseReason      string
	currentInventory float64
	currentPnL       float64
	dailyTrades      *DailyCounter
}

func NewManager(cfg Config, logger *logrus.Logger) *Manager {
	return NewManagerWithClock(cfg, logger, time.Now)
}

// NewManagerWithClock exists so daily rollover behavior can be tested
// without touching the wall clock.
func NewManagerWithClock(cfg Config, logger *logrus.Logger, now func() time.Time) *Manager {
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		dailyTrades: NewDailyCounter(now),
	}
}

// CheckInventory verifies |inventory| stays within the limit.
func (m *Manager) CheckInventory(inventory float64) (bool, string) {
	if math.Abs(inventory) > m.cfg.MaxInventory {
		return false, fmt.Sprintf("Inventory %.4f exceeds limit %s", inventory, formatLimit(m.cfg.MaxInventory))
	}
	return true, ""
}

// CheckVolatility verifies the volatility ratio stays within the limit.
func (m *Manager) CheckVolatility(volatility float64) (bool, string) {
	if volatility > m.cfg.MaxVolatility {
		return false, fmt.Sprintf("Volatility %.4f exceeds limit %s", volatility, formatLimit(m.cfg.MaxVolatility))
	}
	return true, ""
}

// CheckMargin verifies that used margin times the buffer factor fits in
// the free quote-currency balance. A position reporting zero leverage
// contributes nothing; dividing by it would be a fault, not a signal.
func (m *Manager) CheckMargin(balance models.Balance, positions []models.Position) (bool, string) {
	var totalMargin float64
	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		if pos.Leverage == 0 {
			m.logger.WithField("symbol", pos.Symbol).Warn("Position reports zero leverage, skipping margin contribution")
			continue
		}
		totalMargin += math.Abs(pos.Notional / pos.Leverage)
	}

	available := balance.Free(m.cfg.QuoteCurrency)
	required := totalMargin * m.cfg.MarginBuffer
	if required > available {
		return false, fmt.Sprintf("Insufficient margin: %.4f < %.4f", available, required)
	}
	return true, ""
}

// CheckDailyTradeLimit verifies the daily trade budget is not exhausted.
func (m *Manager) CheckDailyTradeLimit() (bool, string) {
	trades := m.dailyTrades.Value()
	if trades >= m.cfg.TradesPerDay {
		return false, fmt.Sprintf("Daily trade limit reached: %d/%d", trades, m.cfg.TradesPerDay)
	}
	return true, ""
}

// ComprehensiveRiskCheck runs every check, updates tracked inventory,
// and flips the paused/allowed state. Zero violations resumes trading;
// there is no partial resume.
func (m *Manager) ComprehensiveRiskCheck(inventory, volatility float64, balance models.Balance, positions []models.Position) (bool, []string) {
	if m.dailyTrades.ResetIfNewDay() {
		m.logger.Info("Reset daily trading metrics")
	}

	var violations []string
	if ok, reason := m.CheckInventory(inventory); !ok {
		violations = append(violations, reason)
	}
	if ok, reason := m.CheckVolatility(volatility); !ok {
		violations = append(violations, reason)
	}
	if ok, reason := m.CheckMargin(balance, positions); !ok {
		violations = append(violations, reason)
	}
	if ok, reason := m.CheckDailyTradeLimit(); !ok {
		violations = append(violations, reason)
	}

	m.UpdateInventory(inventory)

	if len(violations) > 0 {
		m.Pause(strings.Join(violations, "; "))
	} else {
		m.Resume()
	}
	return len(violations) == 0, violations
}

func (m *Manager) UpdateInventory(inventory float64) {
	m.mu.Lock()
	m.currentInventory = inventory
	m.mu.Unlock()
}

func (m *Manager) UpdatePnL(pnl float64) {
	m.mu.Lock()
	m.currentPnL = pnl
	m.mu.Unlock()
}

func (m *Manager) IncrementTradeCount() {
	count := m.dailyTrades.Increment()
	m.logger.WithField("daily_trades", count).Debug("Trade count incremented")
}

func (m *Manager) Pause(reason string) {
	m.mu.Lock()
	wasPaused := m.tradingPaused
	m.tradingPaused = true
	m.pauseReason = reason
	m.mu.Unlock()

	if !wasPaused {
		m.logger.WithField("reason", reason).Warn("Trading paused")
	}
}

func (m *Manager) Resume() {
	m.mu.Lock()
	wasPaused := m.tradingPaused
	m.tradingPaused = false
	m.pauseReason = ""
	m.mu.Unlock()

	if wasPaused {
		m.logger.Info("Trading resumed")
	}
}

func (m *Manager) TradingAllowed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.tradingPaused
}

func (m *Manager) PauseReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pauseReason
}

func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summary{
		TradingPaused:    m.tradingPaused,
		PauseReason:      m.pauseReason,
		CurrentInventory: m.currentInventory,
		CurrentPnL:       m.currentPnL,
		DailyTrades:      m.dailyTrades.Value(),
		MaxInventory:     m.cfg.MaxInventory,
		MaxVolatility:    m.cfg.MaxVolatility,
		MarginBuffer:     m.cfg.MarginBuffer,
	}
}

// formatLimit renders a configured limit the way it appears in alert
// strings: whole numbers keep one decimal (10.0, not 10).
func formatLimit(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
