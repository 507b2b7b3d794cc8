package models

import "time"

type Avatar struct {
	URL string `gorm:"column:avatar_url;type:varchar(512)" json:"url"`
	Key string `gorm:"column:avatar_key;type:varchar(256)" json:"-"`
}

type Investor struct {
	ID           string    `gorm:"primaryKey;size:26" json:"id"` // ULID
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CompanyName  string    `gorm:"type:varchar(255)" json:"companyName"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	Avatar       Avatar    `gorm:"embedded" json:"avatar"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Investor) TableName() string { return "investors" }

// Profile is the sanitized view of an investor that is safe to return to
// clients and to cache under user:{id}.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CompanyName string    `json:"companyName"`
	Phone       string    `json:"phone"`
	Verified    bool      `json:"verified"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (i Investor) Profile() Profile {
	return Profile{
		ID:          i.ID,
		Name:        i.Name,
		Email:       i.Email,
		CompanyName: i.CompanyName,
		Phone:       i.Phone,
		Verified:    i.Verified,
		AvatarURL:   i.Avatar.URL,
		CreatedAt:   i.CreatedAt,
	}
}
