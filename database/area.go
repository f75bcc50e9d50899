package database

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Area is a user-defined automation rule: one bound action (trigger) and one
// bound reaction, possibly on different services. ActionData and ReactionData
// are opaque here; their shape is owned by the capability handler schemas.
type Area struct {
	Model
	UserID   uint   `json:"user_id" gorm:"index"`
	User     User   `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Title    string `json:"title"`
	IsActive bool   `json:"is_active" gorm:"index"`

	ActionServiceType string          `json:"action_service_type" gorm:"index"`
	ActionName        string          `json:"action_name" gorm:"index"`
	ActionData        json.RawMessage `json:"action_data"`

	ReactionServiceType string          `json:"reaction_service_type"`
	ReactionName        string          `json:"reaction_name"`
	ReactionData        json.RawMessage `json:"reaction_data"`

	// Live push-notification channel, empty unless the action's service uses
	// a watch-channel model and the Area is subscribed.
	ChannelWatchID  string     `json:"channel_watch_id" gorm:"index"`
	ResourceWatchID string     `json:"resource_watch_id" gorm:"index"`
	WatchExpiresAt  *time.Time `json:"watch_expires_at"`
}

var ErrAreaNotFound = errors.New("area not found")

// FindAreaByWatch resolves a channel-keyed notification to the single Area
// owning that watch channel.
func FindAreaByWatch(db *gorm.DB, channelID string, resourceID string) (*Area, error) {
	var area Area
	q := db.Where("channel_watch_id = ? AND resource_watch_id = ?", channelID, resourceID).First(&area)
	if q.Error != nil {
		if errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAreaNotFound
		}
		return nil, q.Error
	}
	return &area, nil
}

// FindAreaByChannel resolves a notification that only carries a channel
// identity. Gmail pushes name the watched address but a fresh history id each
// time, so the resource id cannot take part in the lookup.
func FindAreaByChannel(db *gorm.DB, channelID string) (*Area, error) {
	var area Area
	q := db.Where("channel_watch_id = ?", channelID).First(&area)
	if q.Error != nil {
		if errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAreaNotFound
		}
		return nil, q.Error
	}
	return &area, nil
}

// FindActiveAreasByAction returns all active Areas bound to a given action of
// a service, the candidate set for account-keyed notifications.
func FindActiveAreasByAction(db *gorm.DB, serviceType string, actionName string) ([]Area, error) {
	var areas []Area
	q := db.Where("action_service_type = ? AND action_name = ? AND is_active = ?", serviceType, actionName, true).Find(&areas)
	if q.Error != nil {
		return nil, q.Error
	}
	return areas, nil
}

// GetAreaByUUID returns an Area owned by the given user.
func GetAreaByUUID(db *gorm.DB, userID uint, uuid string) (*Area, error) {
	var area Area
	q := db.Where("uuid = ? AND user_id = ?", uuid, userID).First(&area)
	if q.Error != nil {
		if errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAreaNotFound
		}
		return nil, q.Error
	}
	return &area, nil
}

// ActionParams decodes the bound trigger parameters.
func (a *Area) ActionParams() (map[string]string, error) {
	return decodeParams(a.ActionData)
}

// ReactionParams decodes the bound reaction parameters.
func (a *Area) ReactionParams() (map[string]string, error) {
	return decodeParams(a.ReactionData)
}

func decodeParams(raw json.RawMessage) (map[string]string, error) {
	params := map[string]string{}
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}
