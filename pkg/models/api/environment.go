package api

import "time"

type Environment struct {
	Name        string    `json:"name"`
	Steps       int       `json:"steps"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastSavedAt time.Time `json:"last_saved_at"`
}

type SetupStep struct {
	Name    string         `json:"name"`
	RunID   string         `json:"run_id"`
	SavedAt time.Time      `json:"saved_at"`
	Record  map[string]any `json:"record"`
}

type EnvironmentDetail struct {
	Name  string      `json:"name"`
	Steps []SetupStep `json:"steps"`
}

type Error struct {
	Message string `json:"error"`
}
