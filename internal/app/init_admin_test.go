package app

import (
	"path/filepath"
	"testing"

	"github.com/docmapper/docmapper/internal/db"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/docmapper/docmapper/internal/security"
)

func TestCreateAdminUserWithConn_HashesPassword(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "docmapper-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if errCreate := CreateAdminUserWithConn(conn, "admin", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}

	var admin models.Admin
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if admin.PasswordHash == "password" {
		t.Fatalf("expected stored password to be hashed")
	}
	if !security.CheckPassword(admin.PasswordHash, "password") {
		t.Fatalf("expected stored hash to verify against original password")
	}
}
