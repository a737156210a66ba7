package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is the display data shown next to an identity in notifications.
// Profiles are owned by the account service; this core only reads them.
type Profile struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"type:text" json:"name"`
	PhotoURL    string `gorm:"type:text" json:"photo,omitempty"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the profile has no ID yet.
func (p *Profile) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// ProfileMeta is the subset of a profile carried in call notifications.
type ProfileMeta struct {
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// Meta returns the notification view of p; a nil profile yields empty meta.
func (p *Profile) Meta() ProfileMeta {
	if p == nil {
		return ProfileMeta{}
	}
	return ProfileMeta{Name: p.DisplayName, Photo: p.PhotoURL}
}
