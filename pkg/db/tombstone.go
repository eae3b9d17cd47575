package db

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const negativeInfinity = "-infinity"

var tombstoneLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Tombstone is a soft-delete marker. The zero value means "not deleted" and
// is persisted as -infinity so the column never holds NULL.
type Tombstone struct {
	Time time.Time
}

func DeletedAt(t time.Time) Tombstone {
	return Tombstone{Time: t}
}

func (t Tombstone) IsDeleted() bool {
	return !t.Time.IsZero()
}

func (t Tombstone) Value() (driver.Value, error) {
	if t.Time.IsZero() {
		return negativeInfinity, nil
	}
	return t.Time.UTC(), nil
}

func (t *Tombstone) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		// drivers that cannot represent -infinity hand back a zero or far-past time
		if v.IsZero() || v.Year() <= 1 {
			t.Time = time.Time{}
			return nil
		}
		t.Time = v
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("tombstone: unsupported type %T", src)
	}
	return nil
}

func (t *Tombstone) parse(s string) error {
	if s == "" || s == negativeInfinity {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range tombstoneLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("tombstone: cannot parse %q", s)
}

// NotDeleted scopes a query to rows whose deleted_at column is still the sentinel.
func NotDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at = ?", negativeInfinity)
}
