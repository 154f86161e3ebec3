package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/overlaymesh/ronet/internal/hashing"
	"github.com/overlaymesh/ronet/internal/naming"
)

// publishCmd packs a file into a bundle directory the gateway's
// ResourceStore can serve (<bundles-dir>/<addr>/{Manifest.toml,
// payload.bin}) and, if --registry given, commits the new payload hash
// to the registry head so SSE subscribers see it: content is hashed,
// packed into a bundle, written to storage, then registered.
func publishCmd() *cobra.Command {
	var bundlesDir, tld, mime, license, registryAddr string
	var payment bool

	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "pack a file into a bundle and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cid := hashing.Sum(data)
			addr, err := naming.NewContentAddress(cid)
			if err != nil {
				return err
			}

			dir := filepath.Join(bundlesDir, addr.String())
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "payload.bin"), data, 0o644); err != nil {
				return err
			}

			manifest := &naming.Manifest{
				SchemaVersion: 1,
				Tld:           tld,
				Address:       addr.String(),
				ContentHash:   cid,
				Kind:          naming.KindBlob,
				Mime:          mime,
				Size:          int64(len(data)),
				CreatedAt:     time.Now().UTC(),
				License:       license,
			}
			if payment {
				manifest.SchemaVersion = 2
				manifest.Payment = &naming.Payment{Required: true, PriceModel: naming.PriceFlat}
			}
			toml, err := manifest.EncodeTOML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "Manifest.toml"), toml, 0o644); err != nil {
				return err
			}

			fmt.Printf("published %s (%d bytes) to %s\n", addr.String(), len(data), dir)

			if registryAddr != "" {
				if err := commitHead(registryAddr, cid); err != nil {
					return fmt.Errorf("ronetctl: registry commit: %w", err)
				}
				fmt.Printf("committed %s to registry at %s\n", cid, registryAddr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlesDir, "bundles-dir", "./data/bundles", "bundle root directory")
	cmd.Flags().StringVar(&tld, "tld", "", "top-level domain tag for the manifest")
	cmd.Flags().StringVar(&mime, "mime", "application/octet-stream", "content MIME type")
	cmd.Flags().StringVar(&license, "license", "", "license tag")
	cmd.Flags().StringVar(&registryAddr, "registry", "", "registry HTTP base address to commit the new head to, e.g. http://127.0.0.1:8082")
	cmd.Flags().BoolVar(&payment, "require-payment", false, "mark the manifest as payment-required (schema_version 2)")
	return cmd
}

func commitHead(registryBase, payloadB3 string) error {
	body, _ := json.Marshal(map[string]string{"payload_b3": payloadB3})
	resp, err := http.Post(registryBase+"/registry/commit", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry responded %s", resp.Status)
	}
	return nil
}
