package db

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the on-device replica. The gate device must keep working
// with zero connectivity, so the store is an embedded SQLite file.
func Connect(path string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("❌ failed to open SQLite at %s: %v", path, err)
	}
	log.Printf("✅ Opened local store at %s", path)
	return db
}
