package tiers_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/graphfoundry/subgraph-directory/internal/tiers"
)

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func tier(rate uint64, qpm uint32) tiers.Tier {
	return tiers.Tier{
		PaymentRate:      tiers.NewRate(rate),
		QueriesPerMinute: qpm,
	}
}

func TestParseRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "zero",
			input: "0",
			want:  "0",
		},
		{
			name:  "small value",
			input: "100",
			want:  "100",
		},
		{
			name: "wider than 64 bits",
			// 2^127, representable as u128 but not as uint64
			input: "170141183460469231731687303715884105728",
			want:  "170141183460469231731687303715884105728",
		},
		{
			name:    "negative",
			input:   "-1",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "1e9",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rate, err := tiers.ParseRate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate.String())
		})
	}
}

func TestRate_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	input := `{"payment_rate": "170141183460469231731687303715884105728", "queries_per_minute": 1000}`

	var decoded tiers.Tier
	require.NoError(t, json.Unmarshal([]byte(input), &decoded))
	assert.Equal(t, "170141183460469231731687303715884105728", decoded.PaymentRate.String())
	assert.Equal(t, uint32(1000), decoded.QueriesPerMinute)

	encoded, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"payment_rate":"170141183460469231731687303715884105728"`)
}

func TestRate_YAMLDecoding(t *testing.T) {
	t.Parallel()

	input := `
payment_rate: "340282366920938463463374607431768211455"
queries_per_minute: 500
monthly_query_limit: 1000000
`

	var decoded tiers.Tier
	require.NoError(t, yaml.Unmarshal([]byte(input), &decoded))
	assert.Equal(t, "340282366920938463463374607431768211455", decoded.PaymentRate.String())
	assert.Equal(t, uint32(500), decoded.QueriesPerMinute)
	require.NotNil(t, decoded.MonthlyQueryLimit)
	assert.Equal(t, uint64(1000000), *decoded.MonthlyQueryLimit)
}

func TestNew_SortsAscendingByRate(t *testing.T) {
	t.Parallel()

	table := tiers.New([]tiers.Tier{
		tier(100, 1000),
		tier(0, 10),
		tier(50, 100),
	})

	all := table.All()
	require.Len(t, all, 3)
	assert.Equal(t, "0", all[0].PaymentRate.String())
	assert.Equal(t, "50", all[1].PaymentRate.String())
	assert.Equal(t, "100", all[2].PaymentRate.String())
}

func TestTierForRate(t *testing.T) {
	t.Parallel()

	table := tiers.New([]tiers.Tier{
		tier(0, 10),
		tier(100, 1000),
	})

	tests := []struct {
		name    string
		rate    uint64
		wantQPM uint32
	}{
		{
			name:    "between tiers picks the lower",
			rate:    50,
			wantQPM: 10,
		},
		{
			name:    "zero rate gets the lowest tier",
			rate:    0,
			wantQPM: 10,
		},
		{
			name:    "exact boundary qualifies",
			rate:    100,
			wantQPM: 1000,
		},
		{
			name:    "above the top tier picks the top",
			rate:    10000,
			wantQPM: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := table.TierForRate(tiers.NewRate(tt.rate))
			assert.Equal(t, tt.wantQPM, got.QueriesPerMinute)
		})
	}
}

func TestTierForRate_BelowLowestTierIsZeroCapability(t *testing.T) {
	t.Parallel()

	table := tiers.New([]tiers.Tier{
		tier(100, 1000),
		tier(200, 5000),
	})

	got := table.TierForRate(tiers.NewRate(50))
	assert.Equal(t, "0", got.PaymentRate.String())
	assert.Zero(t, got.QueriesPerMinute)
	assert.Nil(t, got.MonthlyQueryLimit)
}

func TestTierForRate_MonotonicNonDecreasing(t *testing.T) {
	t.Parallel()

	table := tiers.New([]tiers.Tier{
		tier(0, 10),
		tier(100, 1000),
		tier(500, 5000),
		tier(2000, 20000),
	})

	var previous uint32
	for rate := uint64(0); rate <= 2500; rate += 25 {
		got := table.TierForRate(tiers.NewRate(rate))
		assert.GreaterOrEqual(t, got.QueriesPerMinute, previous,
			"tier capacity regressed at rate %d", rate)
		previous = got.QueriesPerMinute
	}
}

func TestTierForRate_EqualRatesFirstInsertedWins(t *testing.T) {
	t.Parallel()

	first := tier(100, 1000)
	first.MonthlyQueryLimit = uint64Ptr(1)
	second := tier(100, 9999)
	second.MonthlyQueryLimit = uint64Ptr(2)

	table := tiers.New([]tiers.Tier{first, second})

	got := table.TierForRate(tiers.NewRate(150))
	require.NotNil(t, got.MonthlyQueryLimit)
	assert.Equal(t, uint64(1), *got.MonthlyQueryLimit)
}

func TestNextTierAbove(t *testing.T) {
	t.Parallel()

	table := tiers.New([]tiers.Tier{
		tier(0, 10),
		tier(100, 1000),
	})

	tests := []struct {
		name    string
		rate    uint64
		wantQPM uint32
		wantOK  bool
	}{
		{
			name:    "between tiers returns the upper",
			rate:    50,
			wantQPM: 1000,
			wantOK:  true,
		},
		{
			name:   "at the top tier returns none",
			rate:   100,
			wantOK: false,
		},
		{
			name:   "above the top tier returns none",
			rate:   200,
			wantOK: false,
		},
		{
			name:    "zero rate returns the next paid tier",
			rate:    0,
			wantQPM: 1000,
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := table.NextTierAbove(tiers.NewRate(tt.rate))
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantQPM, got.QueriesPerMinute)
			}
		})
	}
}

func TestNextTierAbove_EmptyTable(t *testing.T) {
	t.Parallel()

	table := tiers.New(nil)

	_, ok := table.NextTierAbove(tiers.NewRate(0))
	assert.False(t, ok)
	assert.Zero(t, table.Len())
}
