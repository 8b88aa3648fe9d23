package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSyncCheck scans all merchants and syncs the ones that are due.
	TaskCatalogSyncCheck = "catalog:sync_check"
	// TaskCatalogSyncMerchant syncs a single merchant on demand.
	TaskCatalogSyncMerchant = "catalog:sync_merchant"
)

// SyncCheckPayload carries scheduling metadata for the periodic scan.
type SyncCheckPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSyncCheckTask constructs an Asynq task for the periodic due-merchant scan.
func NewSyncCheckTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SyncCheckPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSyncCheck, body, asynq.Queue(QueueDefault)), nil
}

// SyncMerchantPayload identifies the merchant to sync.
type SyncMerchantPayload struct {
	MerchantID int64 `json:"merchant_id"`
	FullResync bool  `json:"full_resync"`
}

// NewSyncMerchantTask constructs an Asynq task for a single-merchant sync.
func NewSyncMerchantTask(payload SyncMerchantPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSyncMerchant, body, asynq.Queue(QueueDefault)), nil
}
