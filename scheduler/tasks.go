package scheduler

import (
	"log"
	"time"

	"area/database"

	"gorm.io/gorm"
)

// Task represents a scheduled task
type Task struct {
	Name        string
	Description string
	// Schedule is a cron expression; Every takes precedence when set.
	Schedule string
	Every    time.Duration
	Enabled  bool
	Handler  func() error
}

// MaintenanceTasks returns the recurring housekeeping tasks.
func MaintenanceTasks(DB *gorm.DB) []Task {
	return []Task{
		{
			Name:        "audit_expiring_watches",
			Description: "Log watch channels close to their provider-side expiry",
			Schedule:    "0 * * * *", // hourly
			Enabled:     true,
			Handler: func() error {
				// Watch channels are not renewed automatically; this audit
				// makes the approaching expiries visible to operators.
				cutoff := time.Now().Add(12 * time.Hour)
				var areas []database.Area
				q := DB.Where("is_active = ? AND channel_watch_id <> '' AND watch_expires_at IS NOT NULL AND watch_expires_at < ?",
					true, cutoff).Find(&areas)
				if q.Error != nil {
					return q.Error
				}
				for _, area := range areas {
					log.Printf("Watch channel %s for area %s expires at %v", area.ChannelWatchID, area.UUID, area.WatchExpiresAt)
				}
				return nil
			},
		},
		{
			Name:        "prune_orphaned_watches",
			Description: "Clear watch identifiers left on inactive areas",
			Schedule:    "30 4 * * *",
			Enabled:     true,
			Handler: func() error {
				result := DB.Model(&database.Area{}).
					Where("is_active = ? AND channel_watch_id <> ''", false).
					Updates(map[string]interface{}{"channel_watch_id": "", "resource_watch_id": "", "watch_expires_at": nil})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected > 0 {
					log.Printf("Cleared watch identifiers on %d inactive areas", result.RowsAffected)
				}
				return nil
			},
		},
	}
}
