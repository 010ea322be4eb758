// Package models contains data structures for the diary's domain models.
package models

import "time"

// DiaryEntry is a single journal record owned by exactly one user.
//
// Timestamps are stamped by the store, not by gorm, so both clocks agree.
type DiaryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName returns the database table name for DiaryEntry.
func (DiaryEntry) TableName() string {
	return "diary_entries"
}

// EntryFields carries the mutable part of an entry.
type EntryFields struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// EntryEventType names a change pushed to the entry owner's live connections.
type EntryEventType string

const (
	EntryCreated EntryEventType = "entry_created"
	EntryUpdated EntryEventType = "entry_updated"
	EntryDeleted EntryEventType = "entry_deleted"
)

// EntryEvent tells a client which cached entry views are stale.
type EntryEvent struct {
	Type    EntryEventType `json:"type"`
	EntryID uint           `json:"entryId"`
	UserID  uint           `json:"userId"`
	At      time.Time      `json:"at"`
}
