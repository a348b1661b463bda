package models

// ReleasedMap is a read-only lookup row of map names that already shipped.
// Populated by the release tooling, only ever queried here.
type ReleasedMap struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null;uniqueIndex" json:"name"`
}
