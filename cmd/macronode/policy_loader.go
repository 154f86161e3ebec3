package main

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/overlaymesh/ronet/internal/policy"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// policyFile is the TOML shape a policy bundle is authored in on disk;
// it mirrors policy.Bundle field-for-field since the evaluator's model
// has no unexported state worth hiding from the file format.
type policyFile struct {
	Defaults struct {
		MaxBodyBytes  *uint64 `toml:"max_body_bytes"`
		DefaultAction string  `toml:"default_action"`
	} `toml:"defaults"`
	Rules []struct {
		ID   string `toml:"id"`
		When struct {
			Tenant         string   `toml:"tenant"`
			Method         string   `toml:"method"`
			Region         string   `toml:"region"`
			RequireTagsAll []string `toml:"require_tags_all"`
			MaxBodyBytes   *uint64  `toml:"max_body_bytes"`
		} `toml:"when"`
		Action      string   `toml:"action"`
		Reason      string   `toml:"reason"`
		Obligations []string `toml:"obligations"`
	} `toml:"rules"`
}

// loadPolicyBundle reads a TOML policy document and converts it to a
// policy.Bundle, the evaluator's in-memory shape.
func loadPolicyBundle(path string) (policy.Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy.Bundle{}, rerr.New(rerr.KindConfig, "ReadPolicyFile", "read policy bundle", err)
	}
	var pf policyFile
	if err := toml.Unmarshal(raw, &pf); err != nil {
		return policy.Bundle{}, rerr.New(rerr.KindConfig, "ParsePolicyToml", "parse policy bundle", err)
	}

	bundle := policy.Bundle{
		Defaults: policy.Defaults{
			MaxBodyBytes:  pf.Defaults.MaxBodyBytes,
			DefaultAction: policy.Action(pf.Defaults.DefaultAction),
		},
	}
	for _, r := range pf.Rules {
		bundle.Rules = append(bundle.Rules, policy.Rule{
			ID: r.ID,
			When: policy.When{
				Tenant:         r.When.Tenant,
				Method:         r.When.Method,
				Region:         r.When.Region,
				RequireTagsAll: r.When.RequireTagsAll,
				MaxBodyBytes:   r.When.MaxBodyBytes,
			},
			Action:      policy.Action(r.Action),
			Reason:      r.Reason,
			Obligations: r.Obligations,
		})
	}
	return bundle, nil
}
