package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/overlaymesh/ronet/internal/naming"
)

// debugCmd runs a small, read-only inspection server over a node's
// on-disk bundle and blob directories. It is a local operator tool, not
// on the request hot path: it never touches a running node's listeners,
// only the filesystem state those listeners also read.
func debugCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "debug", Short: "local inspection tools"}

	var bundlesDir, storageDir, listenAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "serve a local read-only view of bundles and blobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := mux.NewRouter()
			r.HandleFunc("/debug/bundles", func(w http.ResponseWriter, req *http.Request) {
				listBundles(w, bundlesDir)
			}).Methods(http.MethodGet)
			r.HandleFunc("/debug/bundles/{addr}", func(w http.ResponseWriter, req *http.Request) {
				showBundle(w, bundlesDir, mux.Vars(req)["addr"])
			}).Methods(http.MethodGet)
			r.HandleFunc("/debug/blobs/{cid}", func(w http.ResponseWriter, req *http.Request) {
				showBlob(w, storageDir, mux.Vars(req)["cid"])
			}).Methods(http.MethodGet)

			fmt.Printf("debug inspection server listening on %s\n", listenAddr)
			return http.ListenAndServe(listenAddr, r)
		},
	}
	serve.Flags().StringVar(&bundlesDir, "bundles-dir", "./data/bundles", "bundle root directory")
	serve.Flags().StringVar(&storageDir, "storage-dir", "./data/blobs", "content-addressed blob directory")
	serve.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:9090", "address to serve the inspection UI on")

	cmd.AddCommand(serve)
	return cmd
}

func listBundles(w http.ResponseWriter, bundlesDir string) {
	entries, err := os.ReadDir(bundlesDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			addrs = append(addrs, e.Name())
		}
	}
	writeJSON(w, map[string]any{"bundles": addrs})
}

func showBundle(w http.ResponseWriter, bundlesDir, addr string) {
	data, err := os.ReadFile(filepath.Join(bundlesDir, addr, "Manifest.toml"))
	if err != nil {
		http.Error(w, "manifest not found", http.StatusNotFound)
		return
	}
	manifest, err := naming.DecodeManifestTOML(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, manifest)
}

func showBlob(w http.ResponseWriter, storageDir, cid string) {
	info, err := os.Stat(filepath.Join(storageDir, cid))
	if err != nil {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"cid": cid, "size": info.Size()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
