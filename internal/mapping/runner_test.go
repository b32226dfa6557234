package mapping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docmapper/docmapper/internal/models"
	"github.com/docmapper/docmapper/internal/ocr"
	"github.com/docmapper/docmapper/internal/storage"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(
		&models.MappingTemplate{},
		&models.MappingDefault{},
		&models.Order{},
		&models.OrderItem{},
		&models.Attachment{},
		&models.TemplateDocument{},
		&models.Setting{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func seedPhoneRun(t *testing.T, db *gorm.DB, store storage.Store) *models.Order {
	t.Helper()
	if _, errPut := store.Put(context.Background(), "masters/plans.csv", []byte("phone,plan\n5551234,Gold\n5559999,Silver\n")); errPut != nil {
		t.Fatalf("seed master: %v", errPut)
	}

	tmpl := models.MappingTemplate{
		Name:     "phone plans",
		ItemType: ItemTypeSingleSource,
		Config: []byte(`{
			"master_csv_path": "masters/plans.csv",
			"external_join_keys": ["phone"],
			"column_aliases": {"PHONE": "phone"},
			"join_normalize": {"strip_non_digits": true, "zfill": 7},
			"output_meta": {"Run": "ctx:order_id"}
		}`),
	}
	if errCreate := db.Create(&tmpl).Error; errCreate != nil {
		t.Fatalf("create template: %v", errCreate)
	}

	order := models.Order{CompanyID: 1, DocTypeID: 2, Status: models.OrderStatusPending, OutputFormat: "csv"}
	if errCreate := db.Create(&order).Error; errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}
	def := models.MappingDefault{CompanyID: 1, DocTypeID: 2, ItemType: ItemTypeSingleSource, TemplateID: tmpl.ID, ConfigOverride: []byte(`{}`)}
	if errCreate := db.Create(&def).Error; errCreate != nil {
		t.Fatalf("create default: %v", errCreate)
	}

	items := []models.OrderItem{
		{OrderID: order.ID, ItemType: ItemTypeSingleSource, SourcePath: "uploads/1", Filename: "a.pdf", Extracted: []byte(`{"PHONE": "555-1234", "customer": "Acme"}`)},
		{OrderID: order.ID, ItemType: ItemTypeSingleSource, SourcePath: "uploads/2", Filename: "b.pdf", Extracted: []byte(`{"PHONE": "555-0000", "customer": "Nobody"}`)},
	}
	if errCreate := db.Create(&items).Error; errCreate != nil {
		t.Fatalf("create items: %v", errCreate)
	}
	return &order
}

func TestRunOrder_EndToEnd(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	runner := NewRunner(db, store, nil)

	if errRun := runner.RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("run order: %v", errRun)
	}

	var done models.Order
	if errFind := db.First(&done, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	if done.Status != models.OrderStatusDone {
		t.Fatalf("expected done status, got %q (%s)", done.Status, done.FailureReason)
	}
	if done.OutputPath == "" {
		t.Fatalf("expected an output path")
	}

	data, errGet := store.Get(context.Background(), done.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch deliverable: %v", errGet)
	}
	out := string(data)
	if !bytes.Contains(data, []byte("Gold")) {
		t.Fatalf("matched row must carry the master plan column:\n%s", out)
	}
	if !bytes.Contains(data, []byte("Nobody")) {
		t.Fatalf("unmatched rows must still be emitted:\n%s", out)
	}
	if !bytes.Contains(data, []byte(fmt.Sprintf("%d", order.ID))) {
		t.Fatalf("ctx meta column must carry the order id:\n%s", out)
	}
}

func TestRunOrder_RerunIsDeterministic(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	runner := NewRunner(db, store, nil)

	if errRun := runner.RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("first run: %v", errRun)
	}
	var after models.Order
	if errFind := db.First(&after, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	first, errGet := store.Get(context.Background(), after.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch first deliverable: %v", errGet)
	}

	if errRun := runner.RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("second run: %v", errRun)
	}
	second, errGet := store.Get(context.Background(), after.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch second deliverable: %v", errGet)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("re-running an unchanged order must reproduce identical bytes")
	}
}

func TestRunOrder_BusyOrderRejected(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	if errUpdate := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", models.OrderStatusProcessing).Error; errUpdate != nil {
		t.Fatalf("mark processing: %v", errUpdate)
	}

	errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID)
	if !errors.Is(errRun, ErrOrderBusy) {
		t.Fatalf("expected ErrOrderBusy, got %v", errRun)
	}
}

func TestRunOrder_MissingMasterFailsOrder(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	if errDelete := store.Delete(context.Background(), "masters/plans.csv"); errDelete != nil {
		t.Fatalf("remove master: %v", errDelete)
	}

	errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID)
	if !errors.Is(errRun, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errRun)
	}

	var failed models.Order
	if errFind := db.First(&failed, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	if failed.Status != models.OrderStatusFailed {
		t.Fatalf("expected failed status, got %q", failed.Status)
	}
	if failed.FailureReason == "" {
		t.Fatalf("failure reason must be preserved for display")
	}
}

func TestRunOrder_NoTemplateMatches(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()

	order := models.Order{CompanyID: 9, DocTypeID: 9, Status: models.OrderStatusPending, OutputFormat: "csv"}
	if errCreate := db.Create(&order).Error; errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}
	item := models.OrderItem{OrderID: order.ID, ItemType: ItemTypeSingleSource, SourcePath: "uploads/1", Filename: "a.pdf", Extracted: []byte(`{}`)}
	if errCreate := db.Create(&item).Error; errCreate != nil {
		t.Fatalf("create item: %v", errCreate)
	}

	errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID)
	if !errors.Is(errRun, ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", errRun)
	}
}

func TestRunOrder_TemplateFallbackByScopeAndPriority(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)

	// Drop the bound default so resolution falls back to scoped templates.
	if errDelete := db.Where("company_id = ?", 1).Delete(&models.MappingDefault{}).Error; errDelete != nil {
		t.Fatalf("delete default: %v", errDelete)
	}
	companyID := uint64(1)
	loser := models.MappingTemplate{
		Name:     "low priority",
		ItemType: ItemTypeSingleSource,
		Priority: -1,
		Config:   []byte(`{"master_csv_path": "masters/absent.csv", "external_join_keys": ["phone"]}`),
	}
	winner := models.MappingTemplate{
		Name:      "scoped winner",
		ItemType:  ItemTypeSingleSource,
		CompanyID: &companyID,
		Priority:  5,
		Config: []byte(`{
			"master_csv_path": "masters/plans.csv",
			"external_join_keys": ["phone"],
			"column_aliases": {"PHONE": "phone"},
			"join_normalize": {"strip_non_digits": true, "zfill": 7}
		}`),
	}
	if errCreate := db.Create(&loser).Error; errCreate != nil {
		t.Fatalf("create loser: %v", errCreate)
	}
	if errCreate := db.Create(&winner).Error; errCreate != nil {
		t.Fatalf("create winner: %v", errCreate)
	}

	if errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("run order: %v", errRun)
	}

	var done models.Order
	if errFind := db.First(&done, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	data, errGet := store.Get(context.Background(), done.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch deliverable: %v", errGet)
	}
	if !bytes.Contains(data, []byte("Gold")) {
		t.Fatalf("highest-priority scoped template must win:\n%s", data)
	}
}

func TestRunOrder_TemplateDocumentOutput(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)

	doc := models.TemplateDocument{
		Name:    "billing",
		Version: "1.0.0",
		Document: []byte(`{
			"template_name": "billing",
			"version": "1.0.0",
			"column_order": ["Customer", "Plan", "Badge"],
			"column_definitions": {
				"Customer": {"type": "source", "source_column": "customer"},
				"Plan": {"type": "source", "source_column": "plan", "default_value": "none"},
				"Badge": {"type": "computed", "expression": "upper(concat({plan}, '!'))"}
			}
		}`),
	}
	if errCreate := db.Create(&doc).Error; errCreate != nil {
		t.Fatalf("create document: %v", errCreate)
	}
	if errUpdate := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("template_document_id", doc.ID).Error; errUpdate != nil {
		t.Fatalf("bind document: %v", errUpdate)
	}

	if errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("run order: %v", errRun)
	}

	var done models.Order
	if errFind := db.First(&done, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	data, errGet := store.Get(context.Background(), done.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch deliverable: %v", errGet)
	}
	out := string(data)
	if !bytes.Contains(data, []byte("Customer,Plan,Badge")) {
		t.Fatalf("column_order must drive the header:\n%s", out)
	}
	if !bytes.Contains(data, []byte("Acme,Gold,GOLD!")) {
		t.Fatalf("matched row must render source and computed columns:\n%s", out)
	}
	if !bytes.Contains(data, []byte("Nobody,none,!")) {
		t.Fatalf("unmatched row must fall back to the source default:\n%s", out)
	}
}

func TestRunOrder_TemplateDocumentUnknownFieldFailsOrder(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)

	doc := models.TemplateDocument{
		Name:    "billing",
		Version: "1.0.0",
		Document: []byte(`{
			"template_name": "billing",
			"version": "1.0.0",
			"column_order": ["Badge"],
			"column_definitions": {
				"Badge": {"type": "computed", "expression": "upper({tier})"}
			}
		}`),
	}
	if errCreate := db.Create(&doc).Error; errCreate != nil {
		t.Fatalf("create document: %v", errCreate)
	}
	if errUpdate := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("template_document_id", doc.ID).Error; errUpdate != nil {
		t.Fatalf("bind document: %v", errUpdate)
	}

	errRun := NewRunner(db, store, nil).RunOrder(context.Background(), order.ID)
	if errRun == nil || !strings.Contains(errRun.Error(), "unknown field") {
		t.Fatalf("a computed column over a field no item produced must fail the run, got %v", errRun)
	}

	var failed models.Order
	if errFind := db.First(&failed, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	if failed.Status != models.OrderStatusFailed {
		t.Fatalf("expected failed status, got %q", failed.Status)
	}
	if !strings.Contains(failed.FailureReason, `"tier"`) {
		t.Fatalf("failure reason must name the missing field, got %q", failed.FailureReason)
	}
}

func TestRunOrder_ExtractorBackfillsEmptyItems(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	if errUpdate := db.Model(&models.OrderItem{}).Where("source_path = ?", "uploads/1").Update("extracted", []byte(`{}`)).Error; errUpdate != nil {
		t.Fatalf("blank item payload: %v", errUpdate)
	}

	extractor := &ocr.StaticExtractor{Results: map[string]map[string]string{
		"uploads/1": {"PHONE": "555-1234", "customer": "Acme"},
	}}
	if errRun := NewRunner(db, store, extractor).RunOrder(context.Background(), order.ID); errRun != nil {
		t.Fatalf("run order: %v", errRun)
	}

	var done models.Order
	if errFind := db.First(&done, order.ID).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	data, errGet := store.Get(context.Background(), done.OutputPath)
	if errGet != nil {
		t.Fatalf("fetch deliverable: %v", errGet)
	}
	if !bytes.Contains(data, []byte("Gold")) {
		t.Fatalf("backfilled item must still join against the master:\n%s", data)
	}
}

func TestRunOrder_ExtractorMissFailsOrder(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemStore()
	order := seedPhoneRun(t, db, store)
	if errUpdate := db.Model(&models.OrderItem{}).Where("source_path = ?", "uploads/1").Update("extracted", nil).Error; errUpdate != nil {
		t.Fatalf("blank item payload: %v", errUpdate)
	}

	errRun := NewRunner(db, store, &ocr.StaticExtractor{}).RunOrder(context.Background(), order.ID)
	if !errors.Is(errRun, ocr.ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", errRun)
	}
}
