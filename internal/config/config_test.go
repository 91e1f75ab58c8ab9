package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mn-exchange/engine/internal/catalog"
)

func TestLoadSymbolsRegistersRows(t *testing.T) {
	reg := catalog.NewRegistry()
	path := filepath.Join("testdata", "symbols.json")

	require.NoError(t, LoadSymbols(path, reg))

	sym, err := reg.Get("BTC-PERP")
	require.NoError(t, err)
	require.Equal(t, catalog.HedgeDeltaNeutral, sym.HedgePolicy)
	require.Equal(t, "BTCUSDT", sym.ExternalSymbol)
}

func TestLoadSymbolsMissingFileIsNotAnError(t *testing.T) {
	reg := catalog.NewRegistry()
	require.NoError(t, LoadSymbols(filepath.Join("testdata", "does-not-exist.json"), reg))
	require.Empty(t, reg.List())
}
