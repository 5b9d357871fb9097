package auth

import "strings"

// QuiverTier is the Quiver subscription plan, ordered by rank.
type QuiverTier int

const (
	TierPublic     QuiverTier = 1
	TierHobbyist   QuiverTier = 2
	TierTrader     QuiverTier = 3
	TierEnterprise QuiverTier = 4
)

func (t QuiverTier) String() string {
	switch t {
	case TierPublic:
		return "Public"
	case TierHobbyist:
		return "Hobbyist"
	case TierTrader:
		return "Trader"
	case TierEnterprise:
		return "Enterprise"
	}
	return "Unknown"
}

// ParseQuiverTier is lenient on case and surrounding whitespace.
func ParseQuiverTier(s string) (QuiverTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return TierPublic, true
	case "hobbyist":
		return TierHobbyist, true
	case "trader":
		return TierTrader, true
	case "enterprise":
		return TierEnterprise, true
	}
	return TierPublic, false
}

// EndpointTier is the plan level an upstream endpoint is sold under.
type EndpointTier int

const (
	EndpointTier1 EndpointTier = 1
	EndpointTier2 EndpointTier = 2
	EndpointTier3 EndpointTier = 3
)

func (e EndpointTier) String() string {
	switch e {
	case EndpointTier1:
		return "tier_1"
	case EndpointTier2:
		return "tier_2"
	case EndpointTier3:
		return "tier_3"
	}
	return "tier_unknown"
}

// TierAllows reports whether a user plan can call an endpoint: an endpoint
// at tier_k requires user rank >= k+1 (tier_1 wants Hobbyist or higher).
func TierAllows(endpoint EndpointTier, user QuiverTier) bool {
	return int(user) >= int(endpoint)+1
}
