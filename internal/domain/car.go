package domain

import "time"

// Car represents a fleet vehicle. Fields are immutable after registration;
// VIN and plate are stored upper-cased so lookups stay case-insensitive.
type Car struct {
	ID           int64     `bson:"id" json:"id"`
	VIN          string    `bson:"vin" json:"vin"`
	Mileage      int64     `bson:"mileage" json:"mileage"`
	Year         int       `bson:"year" json:"year"`
	OwnerCompany string    `bson:"owner_company" json:"owner_company"`
	Model        string    `bson:"model" json:"model"`
	Plate        string    `bson:"plate" json:"plate"`
	FuelType     string    `bson:"fuel_type" json:"fuel_type"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
