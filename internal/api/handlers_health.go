// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
	WSClients     int    `json:"ws_clients"`
}

// Health reports service liveness plus a database reachability check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Database:      "ok",
	}
	if h.hub != nil {
		resp.WSClients = h.hub.GetClientCount()
	}

	status := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
