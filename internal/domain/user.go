package domain

import "time"

// User represents a Telegram user registered with the bot.
type User struct {
	TgID      int64     `bson:"tg_id" json:"tg_id"`
	FullName  string    `bson:"full_name" json:"full_name"`
	Role      string    `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
