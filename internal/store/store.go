// Package store is the durable local participant replica. Read failures are
// logged and degrade to empty results so a broken disk never kills the scan
// flow; insert conflicts are expected and silently ignored.
package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sirdesai22/checkin-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertIfAbsent inserts only if (uid, event_id) is absent. Divergent
// payloads for an existing pair are discarded, never merged, so mutated
// fields survive stale re-imports.
func (s *Store) InsertIfAbsent(p models.Participant) {
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error
	if err != nil {
		log.Printf("store: insert %s/%s failed: %v", p.UID, p.EventID, err)
	}
}

// FindByUID returns the most recently created record for an identity,
// ignoring event. Used when event context is not yet known.
func (s *Store) FindByUID(uid string) *models.Participant {
	var p models.Participant
	err := s.db.Where("uid = ?", uid).Order("created_at DESC").First(&p).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("store: find uid=%s failed: %v", uid, err)
		}
		return nil
	}
	return &p
}

// FindByUIDAndEvent does the exact-pair lookup and, when that misses, retries
// with the legacy composed uid {uid}_{eventNameNoSpaces}. The second lookup
// is a compatibility shim for records replicated from the web directory one
// row per event; it can be dropped once that scheme is retired.
func (s *Store) FindByUIDAndEvent(uid, event string) *models.Participant {
	var p models.Participant
	err := s.db.Where("uid = ? AND event_id = ?", uid, event).First(&p).Error
	if err == nil {
		return &p
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("store: find %s/%s failed: %v", uid, event, err)
		return nil
	}

	legacy := fmt.Sprintf("%s_%s", uid, models.EventKey(event))
	err = s.db.Where("uid = ? AND event_id = ?", legacy, event).First(&p).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("store: find legacy %s/%s failed: %v", legacy, event, err)
		}
		return nil
	}
	return &p
}

// MarkParticipated confirms admission for the specific (uid, event) record.
// Other events sharing the uid are untouched.
func (s *Store) MarkParticipated(uid, event string) {
	now := time.Now()
	err := s.db.Model(&models.Participant{}).
		Where("uid = ? AND event_id = ?", uid, event).
		Updates(map[string]any{
			"participated": true,
			"checked_in":   true,
			"checkin_time": &now,
		}).Error
	if err != nil {
		log.Printf("store: mark participated %s/%s failed: %v", uid, event, err)
	}
}

func (s *Store) SetPaymentVerified(uid string, verified bool) {
	err := s.db.Model(&models.Participant{}).
		Where("uid = ?", uid).
		Update("payment_verified", verified).Error
	if err != nil {
		log.Printf("store: set payment_verified uid=%s failed: %v", uid, err)
	}
}

// UnsyncedOnSpot returns desk registrations not yet pushed to the remote
// directory.
func (s *Store) UnsyncedOnSpot() []models.Participant {
	var out []models.Participant
	err := s.db.Where("source = ? AND sync_status = ?", models.SourceOnSpot, false).
		Find(&out).Error
	if err != nil {
		log.Printf("store: unsynced query failed: %v", err)
		return nil
	}
	return out
}

func (s *Store) MarkSynced(uid string) {
	err := s.db.Model(&models.Participant{}).
		Where("uid = ?", uid).
		Update("sync_status", true).Error
	if err != nil {
		log.Printf("store: mark synced uid=%s failed: %v", uid, err)
	}
}

func (s *Store) All() []models.Participant {
	var out []models.Participant
	if err := s.db.Order("name ASC").Find(&out).Error; err != nil {
		log.Printf("store: list failed: %v", err)
		return nil
	}
	return out
}

func (s *Store) ForEvent(event string) []models.Participant {
	var out []models.Participant
	err := s.db.Where("event_id = ?", event).Order("name ASC").Find(&out).Error
	if err != nil {
		log.Printf("store: list event=%s failed: %v", event, err)
		return nil
	}
	return out
}

// ClearAll wipes the participant set. Administrative reset only.
func (s *Store) ClearAll() {
	if err := s.db.Where("1 = 1").Delete(&models.Participant{}).Error; err != nil {
		log.Printf("store: clear failed: %v", err)
	}
}

// Flag / SetFlag expose the sync bookkeeping rows.
func (s *Store) Flag(key string) string {
	var st models.SyncState
	err := s.db.Where("key = ?", key).First(&st).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("store: flag %s failed: %v", key, err)
		}
		return ""
	}
	return st.Value
}

func (s *Store) SetFlag(key, value string) {
	st := models.SyncState{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&st).Error
	if err != nil {
		log.Printf("store: set flag %s failed: %v", key, err)
	}
}
