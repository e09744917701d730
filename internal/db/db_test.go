package db

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/headline-ai/headline-server/internal/models"
)

func TestConnect_SqliteMigratesSchema(t *testing.T) {
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	gdb, err := Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, table := range []string{"users", "conversations", "messages", "turn_jobs"} {
		if !gdb.Migrator().HasTable(table) {
			t.Fatalf("expected table %q after migrate", table)
		}
	}
}

func TestConnect_TranslatesDuplicateKey(t *testing.T) {
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	gdb, err := Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	u := models.User{Username: "a", Email: "dup@example.com", PasswordHash: "x"}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("first create: %v", err)
	}
	dup := models.User{Username: "b", Email: "dup@example.com", PasswordHash: "y"}
	err = gdb.Create(&dup).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", err)
	}
}
