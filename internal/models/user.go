package models

// User is an account that owns diary entries. Password holds a bcrypt hash.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}
