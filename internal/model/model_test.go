package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusJSON_Processing(t *testing.T) {
	started := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	in := Processing{
		CycleStarted: started,
		Cursor:       "acct-07",
		Prices: PriceTable{
			{Pair: Pair{Base: "uatom", Quote: "untrn"}, Price: decimal.RequireFromString("1.5")},
		},
	}
	raw, err := MarshalStatus(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"processing"`)

	out, err := UnmarshalStatus(raw)
	require.NoError(t, err)
	p, ok := out.(Processing)
	require.True(t, ok, "got %T", out)
	assert.True(t, p.CycleStarted.Equal(started))
	assert.Equal(t, "acct-07", p.Cursor)
	price, ok := p.Prices.Lookup("uatom", "untrn")
	require.True(t, ok)
	assert.Equal(t, "1.5", price.String())
}

func TestUnmarshalStatus_RejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalStatus([]byte(`{"kind":"paused"}`))
	assert.Error(t, err)
	_, err = UnmarshalStatus([]byte(`{"kind":"finished"}`))
	assert.Error(t, err)
}

func TestAccountConfig_CloneIsDeep(t *testing.T) {
	floor := decimal.NewFromInt(950)
	cfg := AccountConfig{Targets: []Target{{Denom: "uatom", MinBalance: &floor}}}
	cp := cfg.Clone()
	*cp.Targets[0].MinBalance = decimal.NewFromInt(1)
	cp.Targets[0].Denom = "untrn"

	assert.Equal(t, "950", cfg.Targets[0].MinBalance.String())
	assert.Equal(t, "uatom", cfg.Targets[0].Denom)

	idx, ok := cfg.ReserveTarget()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestWhitelist(t *testing.T) {
	w := Whitelist{
		Denoms:     []string{"uatom", "untrn"},
		BaseDenoms: []BaseDenom{{Denom: "uatom", MinBalanceLimit: decimal.NewFromInt(10)}},
	}
	assert.True(t, w.HasDenom("untrn"))
	assert.False(t, w.HasDenom("uosmo"))
	bd, ok := w.BaseDenom("uatom")
	assert.True(t, ok)
	assert.Equal(t, "10", bd.MinBalanceLimit.String())
}
