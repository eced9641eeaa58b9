package models

import "gorm.io/gorm"

// MigrateDatabase creates/updates the schema. Order matters only for
// readability; AutoMigrate resolves dependencies itself.
func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&RateTableEntry{},
		&MemberProfile{},
		&Subscription{},
		&Audit{},
		&ActualLineItem{},
		&Flag{},
		&QuotaCounter{},
		&IdempotencyKey{},
	)
}
