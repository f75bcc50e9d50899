package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Supported external service types. These are the catalogue keys the
// capability handler registry is indexed by.
const (
	ServiceDiscord        = "discord"
	ServiceGithub         = "github"
	ServiceGmail          = "gmail"
	ServiceGoogleCalendar = "google_calendar"
	ServiceYoutube        = "youtube"
)

// ServiceInfo is a catalogue entry for one supported external service.
// Rows are seeded at startup and read-only afterwards.
type ServiceInfo struct {
	Model
	Type        string     `json:"type" gorm:"uniqueIndex"`
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	IconURL     string     `json:"icon_url"`
	Description string     `json:"description"`
	Actions     []Action   `json:"actions" gorm:"foreignKey:ServiceInfoID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Reactions   []Reaction `json:"reactions" gorm:"foreignKey:ServiceInfoID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Action is a trigger capability of a service (the "if" half).
type Action struct {
	Model
	ServiceInfoID uint   `json:"-" gorm:"index"`
	Name          string `json:"name" gorm:"index"`
	Description   string `json:"description"`
}

// Reaction is an effect capability of a service (the "then" half).
type Reaction struct {
	Model
	ServiceInfoID uint   `json:"-" gorm:"index"`
	Name          string `json:"name" gorm:"index"`
	Description   string `json:"description"`
}

// UserService is a user's live OAuth connection to one service.
// At most one row per (user, service type); reconnecting upserts.
type UserService struct {
	Model
	UserID       uint    `json:"user_id" gorm:"index;uniqueIndex:idx_user_service_type"`
	User         User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ServiceType  string  `json:"service_type" gorm:"index;uniqueIndex:idx_user_service_type"`
	AccessToken  string  `json:"-"`
	RefreshToken *string `json:"-"`
}

var ErrServiceConnectionNotFound = errors.New("service connection not found")

// GetUserService returns the user's connection for a service type.
func GetUserService(db *gorm.DB, userID uint, serviceType string) (*UserService, error) {
	var connection UserService
	q := db.Where("user_id = ? AND service_type = ?", userID, serviceType).First(&connection)
	if q.Error != nil {
		if errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return nil, ErrServiceConnectionNotFound
		}
		return nil, q.Error
	}
	return &connection, nil
}

// UpsertUserService stores (or replaces) the token pair for a
// (user, service type) pair.
func UpsertUserService(db *gorm.DB, userID uint, serviceType string, accessToken string, refreshToken *string) (*UserService, error) {
	connection := UserService{
		UserID:       userID,
		ServiceType:  serviceType,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	q := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "service_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "updated_at"}),
	}).Create(&connection)
	if q.Error != nil {
		return nil, q.Error
	}

	return GetUserService(db, userID, serviceType)
}

// SaveAccessToken rotates the access token in place after a refresh.
func SaveAccessToken(db *gorm.DB, connection *UserService, accessToken string) error {
	connection.AccessToken = accessToken
	return db.Model(connection).Update("access_token", accessToken).Error
}

func SeedServiceInfo(db *gorm.DB, services []ServiceInfo) error {
	for _, service := range services {
		var existing ServiceInfo
		q := db.Where("type = ?", service.Type).First(&existing)
		if q.Error == nil {
			continue
		}
		if !errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return q.Error
		}
		if err := db.Create(&service).Error; err != nil {
			return err
		}
	}
	return nil
}
