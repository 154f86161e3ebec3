package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overlaymesh/ronet/internal/capability"
)

// keygenCmd mints capability MAC keys and, given a key, capability
// tokens scoped to a path prefix and tenant. Grounded on ron-auth's
// mint-then-attenuate flow (internal/capability.Builder); the wire
// encoding and MAC are SignAndEncode's, unchanged from what the gateway
// verifies.
func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keygen", Short: "mint keys and capability tokens"}

	var keyringPath string
	cmd.PersistentFlags().StringVar(&keyringPath, "keyring", "./data/blobs/mac_keyring.json", "path to the MAC keyring file shared with macronode")

	newKey := &cobra.Command{
		Use:   "key <kid>",
		Short: "generate and persist a new MAC key under kid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kf, err := readKeyring(keyringPath)
			if err != nil {
				return err
			}
			key, err := newMacKey()
			if err != nil {
				return err
			}
			kf.Keys[args[0]] = encodeMacKey(key)
			if err := writeKeyring(keyringPath, kf); err != nil {
				return err
			}
			fmt.Printf("generated key %q in %s\n", args[0], keyringPath)
			return nil
		},
	}

	var tenant, prefix, aud string
	var expIn uint64
	mint := &cobra.Command{
		Use:   "token <kid>",
		Short: "mint a capability token bound to kid's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kid := args[0]
			kf, err := readKeyring(keyringPath)
			if err != nil {
				return err
			}
			enc, ok := kf.Keys[kid]
			if !ok {
				return fmt.Errorf("ronetctl: unknown kid %q in %s", kid, keyringPath)
			}
			key, ok := decodeMacKey(enc)
			if !ok {
				return fmt.Errorf("ronetctl: malformed key for kid %q", kid)
			}

			builder := capability.NewBuilder(capability.Scope{Prefix: prefix}, tenant, kid)
			if aud != "" {
				builder = builder.WithCaveat(capability.CaveatAudience(aud))
			}
			if expIn > 0 {
				builder = builder.WithCaveat(capability.CaveatExpAt(expIn))
			}
			token := builder.Build()

			wire, err := capability.SignAndEncode(token, staticKey{kid: kid, tenant: tenant, key: key})
			if err != nil {
				return err
			}
			fmt.Println(wire)
			return nil
		},
	}
	mint.Flags().StringVar(&tenant, "tenant", "", "tenant id the token is scoped to")
	mint.Flags().StringVar(&prefix, "prefix", "", "address path prefix the token's scope allows")
	mint.Flags().StringVar(&aud, "aud", "", "audience caveat")
	mint.Flags().Uint64Var(&expIn, "exp", 0, "unix seconds expiry caveat (0 disables)")

	cmd.AddCommand(newKey, mint)
	return cmd
}

// staticKey adapts a single resolved (kid, tenant, key) triple to
// capability.MacKeyProvider for one-shot signing.
type staticKey struct {
	kid, tenant string
	key         capability.MacKey
}

func (s staticKey) KeyFor(kid, tenant string) (capability.MacKey, bool) {
	if kid == s.kid && tenant == s.tenant {
		return s.key, true
	}
	return capability.MacKey{}, false
}
