// Package auth resolves provider credentials from environment variables and
// the on-disk auth store, and models Quiver plan-tier gating.
package auth

import "encoding/json"

// Kind discriminates the AuthInfo union.
type Kind string

const (
	KindAPI       Kind = "api"
	KindOAuth     Kind = "oauth"
	KindWellKnown Kind = "wellknown"
)

// Info is one stored credential. The populated fields depend on Type:
// api carries Key (+optional plan metadata), oauth carries the token pair,
// wellknown carries Key and Token.
type Info struct {
	Type Kind `json:"type"`

	Key          string `json:"key,omitempty"`
	ProviderTier string `json:"provider_tier,omitempty"`
	ProviderTag  string `json:"provider_tag,omitempty"`

	Refresh string `json:"refresh,omitempty"`
	Access  string `json:"access,omitempty"`
	Expires int64  `json:"expires,omitempty"`

	Token string `json:"token,omitempty"`
}

// valid applies per-type schema checks. Entries failing validation are
// silently dropped from the loaded view.
func (i Info) valid() bool {
	switch i.Type {
	case KindAPI:
		return i.Key != ""
	case KindOAuth:
		return i.Refresh != ""
	case KindWellKnown:
		return i.Key != "" && i.Token != ""
	}
	return false
}

// decodeEntries parses a raw auth.json object, keeping only entries that
// pass schema validation.
func decodeEntries(raw []byte) (map[string]Info, error) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, err
	}
	out := make(map[string]Info, len(loose))
	for provider, blob := range loose {
		var info Info
		if err := json.Unmarshal(blob, &info); err != nil {
			continue
		}
		if !info.valid() {
			continue
		}
		out[provider] = info
	}
	return out, nil
}
