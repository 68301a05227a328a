package models

import (
	"time"
)

// Streak tracks consecutive daily completions. This service only reads it
// for the profile aggregate; the mobile app writes it.
type Streak struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID            string     `json:"userId" gorm:"type:uuid;not null;uniqueIndex"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	LastCompletedDate *time.Time `json:"lastCompletedDate"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
