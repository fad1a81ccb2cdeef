// Package entities contains GORM models that map directly to database tables.
package entities

import "time"

// PlateRead is one persisted plate read, stored in the 'files' table.
// Path is the file path relative to the watched root and is unique.
// Indexed string columns carry a size so MySQL can index them.
type PlateRead struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	CountryOfVehicle string    `gorm:"not null"`
	RegNumber        string    `gorm:"not null"`
	ConfidenceLevel  string    `gorm:"not null"`
	CameraName       string    `gorm:"size:191;not null;index:idx_files_camera_name"`
	Date             int       `gorm:"not null;index:idx_files_date"`
	Time             int       `gorm:"not null"`
	ImageFilename    string    `gorm:"not null"`
	Path             string    `gorm:"size:512;not null;uniqueIndex:idx_files_path"`
	CreatedAt        time.Time `gorm:"not null"`
}

// TableName keeps the table name of the existing store.
func (PlateRead) TableName() string {
	return "files"
}
