// Package config loads exchange configuration from .env/environment
// variables, grounded on the teacher's params.LoadFromEnv, extended with a
// JSON symbol-catalog seed file since this exchange's "validators" are
// tradable symbols rather than consensus participants.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/money"
)

// Config is the process-wide configuration for cmd/exchanged.
type Config struct {
	DataDir       string
	LogFile       string
	ListenAddr    string
	ReadModelPath string
	SymbolsFile   string

	RingCapacity int
	HedgeInterval time.Duration

	MetricsAddr string
}

// Default returns the devnet defaults, overridden by LoadFromEnv.
func Default() Config {
	return Config{
		DataDir:       "data",
		LogFile:       "data/exchanged.log",
		ListenAddr:    ":8080",
		ReadModelPath: "data/readmodel.db",
		SymbolsFile:   "config/symbols.json",
		RingCapacity:  4096,
		HedgeInterval: 2 * time.Second,
		MetricsAddr:   ":9090",
	}
}

// LoadFromEnv loads a .env file (optional) then overlays environment
// variables, mirroring the teacher's ENV > .env file > defaults priority.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EXCHANGE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("EXCHANGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("EXCHANGE_READMODEL_PATH"); v != "" {
		cfg.ReadModelPath = v
	}
	if v := os.Getenv("EXCHANGE_SYMBOLS_FILE"); v != "" {
		cfg.SymbolsFile = v
	}
	if v := os.Getenv("EXCHANGE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("EXCHANGE_RING_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RingCapacity = n
		}
	}
	if v := os.Getenv("EXCHANGE_HEDGE_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.HedgeInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

// symbolSeed is the JSON shape of one row in the symbols seed file.
type symbolSeed struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Tag                  string `json:"tag"`
	TickSize             int64  `json:"tick_size"`
	LotSize              int64  `json:"lot_size"`
	MinQty               int64  `json:"min_qty"`
	MaxQty               int64  `json:"max_qty"`
	InitialMarginBps     int64  `json:"initial_margin_bps"`
	MaintenanceMarginBps int64  `json:"maintenance_margin_bps"`
	MakerFeeBps          int64  `json:"maker_fee_bps"`
	TakerFeeBps          int64  `json:"taker_fee_bps"`
	HedgeDeltaNeutral    bool   `json:"hedge_delta_neutral"`
	ExternalSymbol       string `json:"external_symbol"`
	USDMultiplier        int64  `json:"usd_multiplier"`
	HedgeThresholdQty    int64  `json:"hedge_threshold_qty"`
	MinNotional          int64  `json:"min_notional"`
	MaxLeverage          int64  `json:"max_leverage"`

	// Circuit-breaker tier overrides (internal/market.BuildTiers); zero
	// Level2Bps means the symbol falls back to market.DefaultTiers.
	Level1Bps int64 `json:"level1_bps"`
	Level2Bps int64 `json:"level2_bps"`
	Level3Bps int64 `json:"level3_bps"`
	T1Seconds int64 `json:"t1_seconds"`
	T2Seconds int64 `json:"t2_seconds"`
}

// LoadSymbols reads a JSON seed file and registers every row into reg. A
// missing file is not an error: an operator-managed catalog may be seeded
// entirely through an admin API instead (not yet wired here).
func LoadSymbols(path string, reg *catalog.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: read symbols file %s", path)
	}

	var seeds []symbolSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return errors.Wrapf(err, "config: parse symbols file %s", path)
	}

	for _, s := range seeds {
		policy := catalog.HedgeNone
		if s.HedgeDeltaNeutral {
			policy = catalog.HedgeDeltaNeutral
		}
		sym, err := catalog.New(s.ID, catalog.Params{
			Name:                 s.Name,
			Tag:                  s.Tag,
			TickSize:             money.Price(s.TickSize),
			LotSize:              money.Qty(s.LotSize),
			MinQty:               money.Qty(s.MinQty),
			MaxQty:               money.Qty(s.MaxQty),
			InitialMarginBps:     money.Bps(s.InitialMarginBps),
			MaintenanceMarginBps: money.Bps(s.MaintenanceMarginBps),
			MakerFeeBps:          money.Bps(s.MakerFeeBps),
			TakerFeeBps:          money.Bps(s.TakerFeeBps),
			HedgePolicy:          policy,
			ExternalSymbol:       s.ExternalSymbol,
			USDMultiplier:        s.USDMultiplier,
			HedgeThresholdQty:    money.Qty(s.HedgeThresholdQty),
			MinNotional:          s.MinNotional,
			MaxLeverage:          s.MaxLeverage,
			Level1Bps:            s.Level1Bps,
			Level2Bps:            s.Level2Bps,
			Level3Bps:            s.Level3Bps,
			T1:                   time.Duration(s.T1Seconds) * time.Second,
			T2:                   time.Duration(s.T2Seconds) * time.Second,
		})
		if err != nil {
			return errors.Wrapf(err, "config: build symbol %s", s.ID)
		}
		if err := reg.Register(sym); err != nil {
			return errors.Wrapf(err, "config: register symbol %s", s.ID)
		}
	}
	return nil
}
