package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScoreMap holds one rater's per-criterion scores. A missing or nil entry
// means the criterion is unrated. Stored as JSONB.
type ScoreMap map[string]*int

func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		m = ScoreMap{}
	}
	return json.Marshal(m)
}

func (m *ScoreMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = ScoreMap{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into ScoreMap", src)
}

type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChannelID string    `gorm:"size:32;not null;uniqueIndex:idx_rating_unique" json:"channel_id"`
	UserID    string    `gorm:"size:32;not null;uniqueIndex:idx_rating_unique" json:"user_id"`
	Scores    ScoreMap  `gorm:"type:jsonb;not null;default:'{}'" json:"scores"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
