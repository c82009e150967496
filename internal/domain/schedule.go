package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule triggers recurring re-analysis of a target on a cron expression.
// Each trigger creates a fresh task; results are never edited in place.
type Schedule struct {
	ID              uuid.UUID  `json:"id"`
	TargetApp       string     `json:"target_app"`
	TargetRevision  string     `json:"target_revision"`
	CapabilitySet   []string   `json:"capability_set"`
	CronExpr        string     `json:"cron_expression"`
	Timezone        string     `json:"timezone"`
	Priority        int        `json:"priority"`
	Enabled         bool       `json:"enabled"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}
