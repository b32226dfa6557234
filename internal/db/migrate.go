package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docmapper/docmapper/internal/models"
	internalsettings "github.com/docmapper/docmapper/internal/settings"
	"gorm.io/gorm"
)

// migratedModels lists every table the schema carries.
var migratedModels = []any{
	&models.Admin{},
	&models.MappingTemplate{},
	&models.MappingDefault{},
	&models.Order{},
	&models.OrderItem{},
	&models.Attachment{},
	&models.TemplateDocument{},
	&models.Setting{},
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(migratedModels...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureRunSettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_orders_status_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_orders_status_updated_at
				ON orders (status, updated_at DESC)
			`,
		},
		{
			name: "idx_orders_company_doc_type",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_orders_company_doc_type
				ON orders (company_id, doc_type_id, created_at DESC)
			`,
		},
		{
			name: "idx_mapping_templates_scope",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_mapping_templates_scope
				ON mapping_templates (item_type, company_id, doc_type_id, priority DESC)
			`,
		},
		{
			name: "idx_template_documents_name_version",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_template_documents_name_version
				ON template_documents (name, version)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(migratedModels...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureRunSettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_orders_status_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_orders_status_updated_at
				ON orders (status, updated_at DESC)
			`,
		},
		{
			name: "idx_orders_company_doc_type",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_orders_company_doc_type
				ON orders (company_id, doc_type_id, created_at DESC)
			`,
		},
		{
			name: "idx_mapping_templates_scope",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_mapping_templates_scope
				ON mapping_templates (item_type, company_id, doc_type_id, priority DESC)
			`,
		},
		{
			name: "idx_template_documents_name_version",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_template_documents_name_version
				ON template_documents (name, version)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureRunSettings seeds the run concurrency setting with its default.
func ensureRunSettings(conn *gorm.DB) error {
	return ensureIntSetting(
		conn,
		internalsettings.RunMaxConcurrencyKey,
		internalsettings.DefaultRunMaxConcurrency,
	)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := json.RawMessage(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	now := time.Now().UTC()
	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
