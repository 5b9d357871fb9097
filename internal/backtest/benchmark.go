package backtest

import (
	"fmt"
	"strings"
)

// BenchmarkMode selects the benchmark set for relative returns. SPY is
// always included.
type BenchmarkMode string

const (
	BenchmarkSPYOnly          BenchmarkMode = "spy_only"
	BenchmarkSectorIfRelevant BenchmarkMode = "spy_plus_sector_if_relevant"
	BenchmarkSectorRequired   BenchmarkMode = "spy_plus_sector_required"
)

// ParseBenchmarkMode is strict; the CLI validates before the engine runs.
func ParseBenchmarkMode(s string) (BenchmarkMode, error) {
	switch BenchmarkMode(strings.ToLower(strings.TrimSpace(s))) {
	case BenchmarkSPYOnly:
		return BenchmarkSPYOnly, nil
	case BenchmarkSectorIfRelevant:
		return BenchmarkSectorIfRelevant, nil
	case BenchmarkSectorRequired:
		return BenchmarkSectorRequired, nil
	}
	return "", fmt.Errorf("unknown benchmark mode %q", s)
}

// sectorETFs maps canonical sector name prefixes to SPDR sector ETFs.
// Matching is by prefix so "Financial Services" and "Healthcare" resolve.
var sectorETFs = []struct {
	prefix string
	etf    string
}{
	{"technology", "XLK"},
	{"financial", "XLF"},
	{"health", "XLV"},
	{"energy", "XLE"},
	{"consumer cyclical", "XLY"},
	{"consumer defensive", "XLP"},
	{"industrial", "XLI"},
	{"utilities", "XLU"},
	{"materials", "XLB"},
	{"real estate", "XLRE"},
	{"communication", "XLC"},
}

// SectorETF resolves a sector name to its ETF symbol.
func SectorETF(sector string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(sector))
	if s == "" {
		return "", false
	}
	for _, entry := range sectorETFs {
		if strings.HasPrefix(s, entry.prefix) {
			return entry.etf, true
		}
	}
	return "", false
}

// BenchmarkSymbols resolves the benchmark list for a run: SPY first, then
// the sector ETF per the mode. Required mode fails when the sector cannot
// be mapped.
func BenchmarkSymbols(mode BenchmarkMode, sector string) ([]string, error) {
	symbols := []string{"SPY"}
	switch mode {
	case BenchmarkSPYOnly:
		return symbols, nil
	case BenchmarkSectorIfRelevant:
		if etf, ok := SectorETF(sector); ok {
			symbols = append(symbols, etf)
		}
		return symbols, nil
	case BenchmarkSectorRequired:
		etf, ok := SectorETF(sector)
		if !ok {
			return nil, errf(CodeMissingBenchmark,
				"no sector ETF resolvable for sector %q", sector)
		}
		return append(symbols, etf), nil
	}
	return nil, fmt.Errorf("unknown benchmark mode %q", mode)
}
