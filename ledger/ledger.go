// Package ledger records metered actions and inbound provider events.
// Usage rows feed daily quota counting; provider-event rows form the
// idempotency fence for at-least-once webhook delivery.
package ledger

import (
	"time"

	"github.com/djangamane/sba-ISM/models"
	"github.com/djangamane/sba-ISM/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordUsage appends one usage row. Best-effort: failures are logged and
// swallowed so accounting can never break the action it is recording.
func (s *Service) RecordUsage(userID, endpoint string) {
	if s.db == nil {
		return
	}

	entry := models.UsageLog{
		UserID:   userID,
		Endpoint: endpoint,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Failed to record usage")
	}
}

// CountUsageSince counts usage rows for one user and endpoint from the
// given instant onward.
func (s *Service) CountUsageSince(userID, endpoint string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.UsageLog{}).
		Where("user_id = ? AND endpoint = ? AND created_at >= ?", userID, endpoint, since).
		Count(&count).Error
	return count, err
}

// SeenEvent reports whether a provider event id is already in the ledger.
// Callers use it as a cheap pre-check; RecordProviderEvent remains the
// authoritative fence.
func (s *Service) SeenEvent(eventID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.PremiumEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordProviderEvent inserts the event row, relying on the unique event_id
// index: a conflicting insert affects zero rows and is reported as a
// duplicate instead of an error. Two concurrent deliveries of the same event
// therefore cannot both claim the insert.
func (s *Service) RecordProviderEvent(eventID string, userID *string, eventType string, payload []byte) (inserted bool, err error) {
	event := models.PremiumEvent{
		EventID:   eventID,
		UserID:    userID,
		EventType: eventType,
		Payload:   datatypes.JSON(payload),
	}

	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
