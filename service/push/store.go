package push

import (
	"github.com/pumpops/pumpops-server/cmd/models"
	"gorm.io/gorm"
)

// SubscriptionStore persists push subscriptions and the delivery audit log.
type SubscriptionStore interface {
	Upsert(sub *models.PushSubscription) error
	DeleteByEndpoint(userID uint, endpoint string) (int64, error)
	DeleteForUser(userID uint) (int64, error)
	PruneEndpoint(endpoint string) error
	ForUser(userID uint) ([]models.PushSubscription, error)
	ForUsers(userIDs []uint) ([]models.PushSubscription, error)
	All() ([]models.PushSubscription, error)
	HasActive(userID uint) (bool, error)
	AppendLog(entry *models.NotificationLog) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Upsert replaces key material for an existing (user, endpoint) registration
// or creates a new row. Re-subscribing the same device never duplicates.
func (s *GormStore) Upsert(sub *models.PushSubscription) error {
	var existing models.PushSubscription
	result := s.db.Where("user_id = ? AND endpoint = ?", sub.UserID, sub.Endpoint).First(&existing)

	if result.Error == nil {
		existing.P256dh = sub.P256dh
		existing.Auth = sub.Auth
		if err := s.db.Save(&existing).Error; err != nil {
			return err
		}
		*sub = existing
		return nil
	}

	return s.db.Create(sub).Error
}

func (s *GormStore) DeleteByEndpoint(userID uint, endpoint string) (int64, error) {
	result := s.db.Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&models.PushSubscription{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) DeleteForUser(userID uint) (int64, error) {
	result := s.db.Where("user_id = ?", userID).Delete(&models.PushSubscription{})
	return result.RowsAffected, result.Error
}

// PruneEndpoint removes a dead endpoint for every user that holds it. Used
// when the push service reports the subscription gone.
func (s *GormStore) PruneEndpoint(endpoint string) error {
	return s.db.Where("endpoint = ?", endpoint).Delete(&models.PushSubscription{}).Error
}

func (s *GormStore) ForUser(userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (s *GormStore) ForUsers(userIDs []uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Where("user_id IN ?", userIDs).Find(&subs).Error
	return subs, err
}

func (s *GormStore) All() ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Find(&subs).Error
	return subs, err
}

func (s *GormStore) HasActive(userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.PushSubscription{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (s *GormStore) AppendLog(entry *models.NotificationLog) error {
	return s.db.Create(entry).Error
}
