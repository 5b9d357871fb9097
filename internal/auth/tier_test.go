package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuiverTier(t *testing.T) {
	tests := []struct {
		in     string
		want   QuiverTier
		wantOK bool
	}{
		{"public", TierPublic, true},
		{"Hobbyist", TierHobbyist, true},
		{" TRADER ", TierTrader, true},
		{"enterprise", TierEnterprise, true},
		{"premium", TierPublic, false},
		{"", TierPublic, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseQuiverTier(tt.in)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuiverTier_String(t *testing.T) {
	assert.Equal(t, "Public", TierPublic.String())
	assert.Equal(t, "Enterprise", TierEnterprise.String())
	assert.Equal(t, "Unknown", QuiverTier(9).String())
}

func TestTierAllows(t *testing.T) {
	tests := []struct {
		name     string
		endpoint EndpointTier
		user     QuiverTier
		want     bool
	}{
		{"tier1_denies_public", EndpointTier1, TierPublic, false},
		{"tier1_allows_hobbyist", EndpointTier1, TierHobbyist, true},
		{"tier2_denies_hobbyist", EndpointTier2, TierHobbyist, false},
		{"tier2_allows_trader", EndpointTier2, TierTrader, true},
		{"tier3_denies_trader", EndpointTier3, TierTrader, false},
		{"tier3_allows_enterprise", EndpointTier3, TierEnterprise, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierAllows(tt.endpoint, tt.user))
		})
	}
}

func TestEndpointTier_String(t *testing.T) {
	assert.Equal(t, "tier_1", EndpointTier1.String())
	assert.Equal(t, "tier_3", EndpointTier3.String())
	assert.Equal(t, "tier_unknown", EndpointTier(0).String())
}
