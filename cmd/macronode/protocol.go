package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/dht"
	"github.com/overlaymesh/ronet/internal/hashing"
	"github.com/overlaymesh/ronet/internal/oap"
	"github.com/overlaymesh/ronet/internal/overlay"
	"github.com/overlaymesh/ronet/internal/storage"
)

// Application protocols carried over OAP/1, beyond the reserved control
// id 0. Grounded on ron-app-sdk's tiles_get.rs example, which sends a
// JSON {"op":...} envelope on a fixed app_proto_id and streams the
// response back as RESP frames terminated by END; generalized here from
// a tile-path fetch to a content-address fetch, matching this system's
// BLAKE3-addressed bundles instead of path-addressed tiles.
const (
	objectFetchProtoID      uint16 = 0x0301
	providerAnnounceProtoID uint16 = 0x0302
)

// maxChunk keeps every RESP frame under the OAP/1 frame cap with room to
// spare for the header and cap section.
const maxChunk = 900 * 1024

type getRequest struct {
	Op  string `json:"op"`
	Cid string `json:"cid"`
}

type announceRequest struct {
	Op     string `json:"op"`
	Cid    string `json:"cid"`
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
	TTLSec int64  `json:"ttl_s"`
}

// protocolDispatcher implements overlay.Handler against this node's
// storage and provider index.
type protocolDispatcher struct {
	blobs   *storage.Store
	dht     *dht.Store
	logger  *logrus.Logger
	version string
}

func (d *protocolDispatcher) handle(ctx context.Context, peerTag string, out *overlay.Writer, frame oap.Frame) error {
	switch frame.Header.AppProtoID {
	case oap.ControlAppProtoID:
		return d.handleHello(out, frame)
	case objectFetchProtoID:
		return d.handleFetch(out, frame)
	case providerAnnounceProtoID:
		return d.handleAnnounce(out, frame)
	default:
		if d.logger != nil {
			d.logger.WithFields(logrus.Fields{"peer": peerTag, "app_proto_id": frame.Header.AppProtoID}).Warn("overlay: unknown app protocol id")
		}
		return errors.New("unknown app_proto_id")
	}
}

func (d *protocolDispatcher) handleHello(out *overlay.Writer, frame oap.Frame) error {
	if _, err := oap.DecodeHello(frame.Payload); err != nil {
		return err
	}
	reply := oap.DefaultHelloReply(d.version, 64)
	body, err := oap.EncodeHelloReply(reply)
	if err != nil {
		return err
	}
	resp := oap.NewResponse(oap.ControlAppProtoID, frame.Header.TenantID, frame.Header.CorrID, 0).
		WithPayload(body).
		WithEnd()
	return out.TrySend(resp)
}

// Response codes for the object-fetch and provider-announce protocols.
const (
	codeOK         uint16 = 0
	codeNotFound   uint16 = 1
	codeBadRequest uint16 = 2
)

func (d *protocolDispatcher) handleFetch(out *overlay.Writer, frame oap.Frame) error {
	var req getRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil || req.Op != "get" || !hashing.Valid(req.Cid) {
		resp := oap.NewResponse(objectFetchProtoID, frame.Header.TenantID, frame.Header.CorrID, codeBadRequest).WithEnd()
		return out.TrySend(resp)
	}

	data, err := d.blobs.Get(req.Cid)
	if errors.Is(err, storage.ErrNotFound) {
		resp := oap.NewResponse(objectFetchProtoID, frame.Header.TenantID, frame.Header.CorrID, codeNotFound).WithEnd()
		return out.TrySend(resp)
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		resp := oap.NewResponse(objectFetchProtoID, frame.Header.TenantID, frame.Header.CorrID, codeOK).WithEnd()
		return out.TrySend(resp)
	}
	for off := 0; off < len(data); off += maxChunk {
		end := off + maxChunk
		if end > len(data) {
			end = len(data)
		}
		resp := oap.NewResponse(objectFetchProtoID, frame.Header.TenantID, frame.Header.CorrID, codeOK).
			WithPayload(data[off:end])
		if end == len(data) {
			resp = resp.WithEnd()
		}
		if err := out.TrySend(resp); err != nil {
			return err
		}
	}
	return nil
}

func (d *protocolDispatcher) handleAnnounce(out *overlay.Writer, frame oap.Frame) error {
	var req announceRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil || req.Op != "announce" || !hashing.Valid(req.Cid) {
		resp := oap.NewResponse(providerAnnounceProtoID, frame.Header.TenantID, frame.Header.CorrID, codeBadRequest).WithEnd()
		return out.TrySend(resp)
	}

	addr, err := multiaddr.NewMultiaddr(req.Addr)
	if err != nil {
		resp := oap.NewResponse(providerAnnounceProtoID, frame.Header.TenantID, frame.Header.CorrID, codeBadRequest).WithEnd()
		return out.TrySend(resp)
	}

	var ttl time.Duration
	if req.TTLSec > 0 {
		ttl = time.Duration(req.TTLSec) * time.Second
	}
	d.dht.Add(req.Cid, dht.Node{ID: req.NodeID, Addr: addr}, ttl)

	resp := oap.NewResponse(providerAnnounceProtoID, frame.Header.TenantID, frame.Header.CorrID, codeOK).WithEnd()
	return out.TrySend(resp)
}
