package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Model is the base embedded in every table. Rows are addressed externally by
// UUID; the numeric primary key never leaves the process.
type Model struct {
	UUID      string         `gorm:"type:uuid;" json:"uuid"`
	ID        uint           `gorm:"primarykey" json:"-"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns the row's UUID.
func (b *Model) BeforeCreate(tx *gorm.DB) (err error) {
	b.UUID = uuid.New().String()
	return
}
