package outbox

import (
	"errors"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := *entry.ErrorMessage
		if len(msg) > maxLastErrorLen {
			msg = msg[:maxLastErrorLen]
		}
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}
