package auth

import (
	"os"
	"strings"
)

// Provider ids known to the credential resolver.
const (
	ProviderYahoo        = "yahoo"
	ProviderAlphaVantage = "alphavantage"
	ProviderFinnhub      = "finnhub"
	ProviderFMP          = "fmp"
	ProviderPolygon      = "polygon"
	ProviderQuartr       = "quartr"
	ProviderSECEdgar     = "secedgar"
	ProviderQuiver       = "quiver"
)

// envVars lists the candidate environment variables per provider, in
// resolution order. The first non-empty value wins.
var envVars = map[string][]string{
	ProviderAlphaVantage: {"ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_KEY"},
	ProviderFinnhub:      {"FINNHUB_API_KEY", "FINNHUB_KEY"},
	ProviderFMP:          {"FMP_API_KEY", "FINANCIAL_MODELING_PREP_API_KEY"},
	ProviderPolygon:      {"POLYGON_API_KEY", "POLYGON_KEY"},
	ProviderQuartr:       {"QUARTR_API_KEY"},
	ProviderQuiver:       {"QUIVER_QUANT_API_KEY", "QUIVERQUANT_API_KEY"},
	ProviderSECEdgar:     {"SEC_EDGAR_IDENTITY", "SEC_API_USER_AGENT"},
}

// EnvVarsFor exposes the candidate variable names for a provider, mainly
// for diagnostics output.
func EnvVarsFor(provider string) []string {
	return append([]string(nil), envVars[provider]...)
}

// Credential pairs whatever the environment offered with whatever the auth
// store holds for a provider.
type Credential struct {
	EnvKey   string
	EnvValue string
	Info     *Info
}

// Resolver resolves credentials env-first, then store. It never errors on
// absence; callers decide whether absence is fatal.
type Resolver struct {
	store  *Store
	getenv func(string) string
}

// NewResolver builds a resolver over the given store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store, getenv: os.Getenv}
}

// SetGetenv injects an environment lookup for tests.
func (r *Resolver) SetGetenv(getenv func(string) string) { r.getenv = getenv }

// ReadProviderCredential returns the first non-empty configured env value
// and the structured store entry, either of which may be absent.
func (r *Resolver) ReadProviderCredential(provider string) Credential {
	cred := Credential{}
	for _, name := range envVars[provider] {
		if v := r.getenv(name); v != "" {
			cred.EnvKey = name
			cred.EnvValue = v
			break
		}
	}
	if r.store != nil {
		if info, ok := r.store.Get(provider); ok {
			cred.Info = &info
		}
	}
	return cred
}

// ResolveProviderAPIKey resolves the usable API key for a provider. The raw
// env value wins over a stored api-typed key; oauth and wellknown entries
// never satisfy api-key resolution. With trim enabled, whitespace-only
// values are rejected and surviving values are trimmed.
func (r *Resolver) ResolveProviderAPIKey(provider string, trim bool) (string, bool) {
	cred := r.ReadProviderCredential(provider)

	normalize := func(v string) (string, bool) {
		if !trim {
			return v, v != ""
		}
		t := strings.TrimSpace(v)
		return t, t != ""
	}

	if key, ok := normalize(cred.EnvValue); ok {
		return key, true
	}
	if cred.Info != nil && cred.Info.Type == KindAPI {
		if key, ok := normalize(cred.Info.Key); ok {
			return key, true
		}
	}
	return "", false
}

// QuiverCredential combines the Quiver API key with the resolved plan tier.
type QuiverCredential struct {
	Key      string
	Tier     QuiverTier
	Inferred bool
	Warning  string
}

// ResolveQuiverCredential resolves the Quiver key plus plan tier. When tier
// metadata is absent the tier falls back to Public with Inferred=true and an
// advisory warning.
func (r *Resolver) ResolveQuiverCredential(trim bool) (QuiverCredential, bool) {
	key, ok := r.ResolveProviderAPIKey(ProviderQuiver, trim)
	if !ok {
		return QuiverCredential{}, false
	}

	cred := r.ReadProviderCredential(ProviderQuiver)
	if cred.Info != nil && cred.Info.Type == KindAPI && cred.Info.ProviderTier != "" {
		if tier, parsed := ParseQuiverTier(cred.Info.ProviderTier); parsed {
			return QuiverCredential{Key: key, Tier: tier}, true
		}
	}
	return QuiverCredential{
		Key:      key,
		Tier:     TierPublic,
		Inferred: true,
		Warning:  "Quiver plan tier unknown; assuming Public. Set it with: tickerlens auth login --provider quiver --tier <plan>",
	}, true
}
