package config

import "slices"

// Tenants returns the sorted, deduplicated tenant ids bound in server.keys.
// The deterministic order keeps tenant setup and scheduled maintenance
// stable across restarts.
func Tenants(cfg *Config) []string {
	seen := make(map[string]struct{}, len(cfg.Server.Keys))
	ids := make([]string, 0, len(cfg.Server.Keys))
	for _, k := range cfg.Server.Keys {
		if k.Tenant == "" {
			continue
		}
		if _, ok := seen[k.Tenant]; ok {
			continue
		}
		seen[k.Tenant] = struct{}{}
		ids = append(ids, k.Tenant)
	}
	slices.Sort(ids)
	return ids
}

// Secrets returns every API key value in server.keys, for log
// redaction.
func Secrets(cfg *Config) []string {
	out := make([]string, 0, len(cfg.Server.Keys))
	for _, k := range cfg.Server.Keys {
		if k.Key != "" {
			out = append(out, k.Key)
		}
	}
	return out
}
