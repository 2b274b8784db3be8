package models

import (
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// StrategyListResponse lists the registered strategies.
type StrategyListResponse struct {
	Strategies []engine.StrategyInfo `json:"strategies"`
	Enabled    []string              `json:"enabled"`
	Total      int                   `json:"total"`
}

// AuditResponse lists audit entries, newest first.
type AuditResponse struct {
	Entries []strategyconfig.AuditEntry `json:"entries"`
	Total   int                         `json:"total"`
}

// BackupListResponse lists the backups of one strategy.
type BackupListResponse struct {
	Strategy string                           `json:"strategy"`
	Backups  []strategyconfig.BackupMetadata `json:"backups"`
}

// ConfigResponse carries one strategy configuration.
type ConfigResponse struct {
	Config  strategyconfig.StrategyConfig `json:"config"`
	Message string                        `json:"message,omitempty"`
}
