package server

import (
	"orbitlab/server/catalog"
	"orbitlab/server/internal/render"
)

type joinResponse struct {
	Ver             int               `json:"ver"`
	ID              string            `json:"id"`
	Families        []string          `json:"families"`
	Limits          render.Limits     `json:"limits"`
	Presets         []catalog.Summary `json:"presets,omitempty"`
	CatalogHash     string            `json:"catalogHash,omitempty"`
	HeartbeatMillis int64             `json:"heartbeatMillis"`
}

type diagnosticsViewer struct {
	Ver           int    `json:"ver"`
	ID            string `json:"id"`
	Connected     bool   `json:"connected"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
	LastAck       uint64 `json:"lastAck"`
	ActiveJob     uint64 `json:"activeJob,omitempty"`
	JournalFrames int    `json:"journalFrames"`
}
