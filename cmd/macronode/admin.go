package main

import (
	"github.com/overlaymesh/ronet/internal/audit"
	"github.com/overlaymesh/ronet/internal/gateway"
)

// adminHooks wires gateway.AdminHooks to this node's lifecycle: shutdown
// cancels the root context, reload rebuilds the gateway handler from a
// freshly loaded config and swaps it into the reloadable front door,
// crash forces a named supervised service through its restart path, and
// status reports per-service health. Every call is chained onto the
// "admin" audit stream.
func (n *Node) adminHooks() gateway.AdminHooks {
	return gateway.AdminHooks{
		Shutdown: n.handleShutdown,
		Reload:   n.handleReload,
		Crash:    n.handleCrash,
		Status:   n.handleStatus,
	}
}

func (n *Node) handleShutdown() error {
	n.appendAudit(audit.KindAdminAction, "admin", "shutdown_requested", nil)
	if n.cancel != nil {
		n.cancel()
	}
	return nil
}

func (n *Node) handleReload() error {
	cfg, err := loadConfig(n.cfgPath)
	if err != nil {
		n.appendAudit(audit.KindAdminAction, "admin", "reload_failed", map[string]any{"error": err.Error()})
		return err
	}
	n.cfg.Store(&cfg)
	n.gatewayHandler.Set(n.buildGatewayHandler(cfg))
	n.appendAudit(audit.KindAdminAction, "admin", "reload_applied", map[string]any{"version": cfg.Version})
	return nil
}

func (n *Node) handleCrash(service string) error {
	svc, ok := n.services[service]
	if !ok {
		n.appendAudit(audit.KindAdminAction, "admin", "crash_unknown_service", map[string]any{"service": service})
		return errNoSuchService
	}
	svc.Trigger()
	n.appendAudit(audit.KindAdminAction, "admin", "crash_triggered", map[string]any{"service": service})
	return nil
}

func (n *Node) handleStatus() gateway.StatusReport {
	cfg := n.cfg.Load()
	services := make(map[string]string, len(n.services))
	for name := range n.services {
		if n.sup != nil && n.sup.Failed(name) {
			services[name] = "failed"
		} else {
			services[name] = "running"
		}
	}
	mode := "normal"
	if cfg != nil && cfg.Amnesia {
		mode = "amnesia"
	}
	fingerprint, err := n.keys.Fingerprint(n.identity)
	if err != nil {
		fingerprint = "unknown"
	}
	return gateway.StatusReport{
		Name:     "macronode",
		Version:  nodeVersion,
		Mode:     mode + "/pq:" + string(cfg.PQPosture) + "/node:" + fingerprint,
		Services: services,
	}
}
