package model

import "time"

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"` // user | artist | admin
	CreatedAt time.Time `json:"created_at"`
}
