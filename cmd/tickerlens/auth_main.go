package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/config"
)

func openAuthStore() (*auth.Store, *auth.Resolver, error) {
	dataRoot, err := auth.DefaultDataRoot()
	if err != nil {
		return nil, nil, err
	}
	store := auth.NewStore(dataRoot)
	return store, auth.NewResolver(store), nil
}

func knownProvider(id string) bool {
	for _, known := range config.DefaultOrder() {
		if id == known {
			return true
		}
	}
	return false
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	provider, _ := cmd.Flags().GetString("provider")
	key, _ := cmd.Flags().GetString("key")
	tier, _ := cmd.Flags().GetString("tier")

	provider = strings.ToLower(strings.TrimSpace(provider))
	key = strings.TrimSpace(key)

	if provider == "" {
		return fmt.Errorf("--provider is required")
	}
	if !knownProvider(provider) {
		return fmt.Errorf("unknown provider %q (known: %s)", provider, strings.Join(config.DefaultOrder(), ", "))
	}
	if provider == auth.ProviderYahoo {
		return fmt.Errorf("yahoo requires no credentials")
	}
	if key == "" {
		return fmt.Errorf("--key is required")
	}
	if tier != "" {
		if provider != auth.ProviderQuiver {
			return fmt.Errorf("--tier only applies to quiver")
		}
		parsed, ok := auth.ParseQuiverTier(tier)
		if !ok {
			return fmt.Errorf("unknown tier %q (public|hobbyist|trader|enterprise)", tier)
		}
		tier = strings.ToLower(parsed.String())
	}

	store, _, err := openAuthStore()
	if err != nil {
		return err
	}
	if err := store.Set(provider, auth.Info{Type: auth.KindAPI, Key: key, ProviderTier: tier}); err != nil {
		return err
	}

	fmt.Printf("Stored %s credential in %s\n", provider, store.Path())
	if provider == auth.ProviderQuiver && tier == "" {
		fmt.Println("No plan tier set; tier-gated endpoints will assume Public. Re-run with --tier to unlock them.")
	}
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	store, resolver, err := openAuthStore()
	if err != nil {
		return err
	}

	fmt.Printf("Credential store: %s\n\n", store.Path())
	for _, id := range config.DefaultOrder() {
		if id == auth.ProviderYahoo {
			fmt.Printf("%-13s %-8s keyless\n", id, "ok")
			continue
		}

		cred := resolver.ReadProviderCredential(id)
		envDesc := "unset"
		if cred.EnvKey != "" {
			envDesc = cred.EnvKey
		} else if vars := auth.EnvVarsFor(id); len(vars) > 0 {
			envDesc = "unset (" + strings.Join(vars, ", ") + ")"
		}
		storeDesc := "-"
		if cred.Info != nil {
			storeDesc = string(cred.Info.Type)
			if cred.Info.ProviderTier != "" {
				storeDesc += "/" + cred.Info.ProviderTier
			}
		}
		resolved := "missing"
		if _, ok := resolver.ResolveProviderAPIKey(id, true); ok {
			resolved = "ok"
		}
		fmt.Printf("%-13s %-8s env: %-52s store: %s\n", id, resolved, envDesc, storeDesc)
	}

	if cred, ok := resolver.ResolveQuiverCredential(true); ok && cred.Inferred {
		fmt.Printf("\nNote: %s\n", cred.Warning)
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	provider, _ := cmd.Flags().GetString("provider")
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return fmt.Errorf("--provider is required")
	}

	store, _, err := openAuthStore()
	if err != nil {
		return err
	}
	if _, ok := store.Get(provider); !ok {
		fmt.Printf("No stored credential for %s\n", provider)
		return nil
	}
	if err := store.Remove(provider); err != nil {
		return err
	}
	fmt.Printf("Removed %s credential\n", provider)
	return nil
}
