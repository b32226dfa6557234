package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/docmapper/docmapper/internal/export"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/docmapper/docmapper/internal/ocr"
	"github.com/docmapper/docmapper/internal/settings"
	"github.com/docmapper/docmapper/internal/storage"
	"github.com/docmapper/docmapper/internal/template"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrOrderBusy indicates a mapping run is already active for the order. At
// most one run per order may be in flight.
var ErrOrderBusy = errors.New("mapping: order already processing")

// ErrNoTemplate indicates no mapping template or default matches the
// order's company, document type, and item type.
var ErrNoTemplate = errors.New("mapping: no template matches order")

// Runner executes the mapping pipeline for whole orders. Independent orders
// may run concurrently; within one order the master index is loaded once
// and shared read-only across items.
type Runner struct {
	db        *gorm.DB
	store     storage.Store
	extractor ocr.Extractor
}

// NewRunner constructs a Runner. extractor backfills items and attachments
// stored without an extracted payload; it may be nil when every document
// arrives pre-extracted.
func NewRunner(db *gorm.DB, store storage.Store, extractor ocr.Extractor) *Runner {
	return &Runner{db: db, store: store, extractor: extractor}
}

// RunOrder claims the order, executes its mapping run, and records the
// terminal state. Data errors fail only this order; the failure message is
// preserved on the order for user display.
func (r *Runner) RunOrder(ctx context.Context, orderID uint64) error {
	order, errClaim := r.claimOrder(ctx, orderID)
	if errClaim != nil {
		return errClaim
	}

	log.Infof("mapping run started (order_id=%d)", orderID)
	outputPath, errRun := r.execute(ctx, order)
	now := time.Now().UTC()
	if errRun != nil {
		if errMark := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(map[string]any{
			"status":         models.OrderStatusFailed,
			"failure_reason": errRun.Error(),
			"updated_at":     now,
		}).Error; errMark != nil {
			log.WithError(errMark).Warn("mapping run: record failure state failed")
		}
		return errRun
	}

	if errMark := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(map[string]any{
		"status":         models.OrderStatusDone,
		"failure_reason": "",
		"output_path":    outputPath,
		"updated_at":     now,
	}).Error; errMark != nil {
		return fmt.Errorf("mapping run: record done state: %w", errMark)
	}
	log.Infof("mapping run finished (order_id=%d output=%s)", orderID, outputPath)
	return nil
}

// claimOrder transitions the order into processing. The guarded update is
// what enforces the at-most-one-concurrent-run-per-order invariant.
func (r *Runner) claimOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	var order models.Order
	if errFind := r.db.WithContext(ctx).First(&order, orderID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("mapping run: order %d: %w", orderID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("mapping run: load order %d: %w", orderID, errFind)
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status <> ?", orderID, models.OrderStatusProcessing).
		Updates(map[string]any{
			"status":     models.OrderStatusProcessing,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("mapping run: claim order %d: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("mapping run: order %d: %w", orderID, ErrOrderBusy)
	}
	order.Status = models.OrderStatusProcessing
	return &order, nil
}

// execute runs the join and render pipeline and stores the deliverable,
// returning its storage path.
func (r *Runner) execute(ctx context.Context, order *models.Order) (string, error) {
	var items []models.OrderItem
	if errFind := r.db.WithContext(ctx).Where("order_id = ?", order.ID).Order("id ASC").Find(&items).Error; errFind != nil {
		return "", fmt.Errorf("mapping run: load items: %w", errFind)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("mapping run: order %d has no items", order.ID)
	}
	itemType := items[0].ItemType

	cfg, errResolve := r.resolveConfig(ctx, order, itemType)
	if errResolve != nil {
		return "", errResolve
	}

	master, errLoad := LoadMaster(ctx, r.store, cfg.MasterCSVPath, cfg.ExternalJoinKeys, cfg.JoinNormalize)
	if errLoad != nil {
		return "", errLoad
	}

	rows := make([]map[string]string, len(items))
	columns := make([][]string, len(items))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.runConcurrency(ctx))
	for i := range items {
		group.Go(func() error {
			item := items[i]
			primary, errRecord := r.itemRecord(groupCtx, item)
			if errRecord != nil {
				return errRecord
			}

			var attachmentMap map[string]Record
			if itemType == ItemTypeMultiSource {
				attachments, errAtt := r.attachmentRecords(groupCtx, item.ID)
				if errAtt != nil {
					return errAtt
				}
				attachmentMap = ResolveAttachments(cfg, attachments)
			}

			joined := Join(primary, attachmentMap, master, cfg, RunContext{
				OrderID: strconv.FormatUint(order.ID, 10),
				ItemID:  strconv.FormatUint(item.ID, 10),
				Company: strconv.FormatUint(order.CompanyID, 10),
				DocType: strconv.FormatUint(order.DocTypeID, 10),
			})
			rows[i] = joined.Fields
			columns[i] = joined.Columns
			return nil
		})
	}
	if errWait := group.Wait(); errWait != nil {
		return "", errWait
	}

	table, errRender := r.renderTable(ctx, order, rows, columns)
	if errRender != nil {
		return "", errRender
	}

	data, errWrite := export.Write(table, order.OutputFormat, fmt.Sprintf("Order %d", order.ID))
	if errWrite != nil {
		return "", errWrite
	}
	outputPath := fmt.Sprintf("outputs/order_%d%s", order.ID, export.Extension(order.OutputFormat))
	if _, errPut := r.store.Put(ctx, outputPath, data); errPut != nil {
		return "", fmt.Errorf("mapping run: store deliverable: %w", errPut)
	}
	return outputPath, nil
}

// resolveConfig finds the template bound to the order and layers the
// default's override on top. Configuration is read once per run; admin
// edits made afterwards do not affect the run in flight.
func (r *Runner) resolveConfig(ctx context.Context, order *models.Order, itemType string) (*TemplateConfig, error) {
	var tmpl models.MappingTemplate
	var override []byte

	var def models.MappingDefault
	errDefault := r.db.WithContext(ctx).
		Where("company_id = ? AND doc_type_id = ? AND item_type = ?", order.CompanyID, order.DocTypeID, itemType).
		First(&def).Error
	switch {
	case errDefault == nil:
		if errFind := r.db.WithContext(ctx).First(&tmpl, def.TemplateID).Error; errFind != nil {
			return nil, fmt.Errorf("mapping run: load template %d: %w", def.TemplateID, errFind)
		}
		override = def.ConfigOverride
	case errors.Is(errDefault, gorm.ErrRecordNotFound):
		// No default bound: fall back to the best-scoped template.
		errFind := r.db.WithContext(ctx).
			Where("item_type = ?", itemType).
			Where("company_id IS NULL OR company_id = ?", order.CompanyID).
			Where("doc_type_id IS NULL OR doc_type_id = ?", order.DocTypeID).
			Order("priority DESC, id ASC").
			First(&tmpl).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("mapping run: order %d: %w", order.ID, ErrNoTemplate)
		}
		if errFind != nil {
			return nil, fmt.Errorf("mapping run: find template: %w", errFind)
		}
	default:
		return nil, fmt.Errorf("mapping run: find mapping default: %w", errDefault)
	}

	cfg, errMerge := ResolveEffectiveConfig(tmpl.Config, override)
	if errMerge != nil {
		return nil, errMerge
	}
	if errValidate := cfg.Validate(itemType); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// renderTable produces the deliverable table: a template document render
// when the order selects one, the plain mapped table otherwise.
func (r *Runner) renderTable(ctx context.Context, order *models.Order, rows []map[string]string, columns [][]string) (*template.Table, error) {
	if order.TemplateDocumentID == nil {
		return defaultTable(rows, columns), nil
	}

	var doc models.TemplateDocument
	if errFind := r.db.WithContext(ctx).First(&doc, *order.TemplateDocumentID).Error; errFind != nil {
		return nil, fmt.Errorf("mapping run: load template document %d: %w", *order.TemplateDocumentID, errFind)
	}
	// At run time the mapped columns are known, so a document whose computed
	// expressions reference a field no item produced fails the run instead
	// of rendering blanks.
	parsed, errParse := template.ParseDocument(doc.Document, columnUnion(columns))
	if errParse != nil {
		return nil, errParse
	}
	return parsed.Render(rows), nil
}

// columnUnion flattens per-item column lists into their union in
// first-appearance order.
func columnUnion(columns [][]string) []string {
	var order []string
	seen := make(map[string]struct{})
	for _, cols := range columns {
		for _, name := range cols {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			order = append(order, name)
		}
	}
	return order
}

// defaultTable builds the plain mapped table over the column union.
func defaultTable(rows []map[string]string, columns [][]string) *template.Table {
	order := columnUnion(columns)
	table := &template.Table{Columns: order, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		out := make([]string, len(order))
		for i, name := range order {
			out[i] = row[name]
		}
		table.Rows = append(table.Rows, out)
	}
	return table
}

// itemRecord converts a stored order item into a mapping record, asking the
// extractor for the fields when none were stored at intake.
func (r *Runner) itemRecord(ctx context.Context, item models.OrderItem) (Record, error) {
	fields, errDecode := decodeFields(item.Extracted)
	if errDecode != nil {
		return Record{}, fmt.Errorf("mapping run: item %d extracted fields: %w", item.ID, errDecode)
	}
	if len(fields) == 0 && r.extractor != nil {
		extracted, errExtract := r.extractor.Extract(ctx, item.SourcePath)
		if errExtract != nil {
			return Record{}, fmt.Errorf("mapping run: extract item %d: %w", item.ID, errExtract)
		}
		fields = extracted
	}
	return Record{Fields: fields, SourcePath: item.SourcePath, Filename: item.Filename}, nil
}

// attachmentRecords loads and converts an item's attachments.
func (r *Runner) attachmentRecords(ctx context.Context, itemID uint64) ([]Record, error) {
	var attachments []models.Attachment
	if errFind := r.db.WithContext(ctx).Where("order_item_id = ?", itemID).Order("id ASC").Find(&attachments).Error; errFind != nil {
		return nil, fmt.Errorf("mapping run: load attachments for item %d: %w", itemID, errFind)
	}
	records := make([]Record, 0, len(attachments))
	for _, att := range attachments {
		fields, errDecode := decodeFields(att.Extracted)
		if errDecode != nil {
			return nil, fmt.Errorf("mapping run: attachment %d extracted fields: %w", att.ID, errDecode)
		}
		if len(fields) == 0 && r.extractor != nil {
			extracted, errExtract := r.extractor.Extract(ctx, att.SourcePath)
			if errExtract != nil {
				return nil, fmt.Errorf("mapping run: extract attachment %d: %w", att.ID, errExtract)
			}
			fields = extracted
		}
		records = append(records, Record{Fields: fields, SourcePath: att.SourcePath, Filename: att.Filename})
	}
	return records, nil
}

// decodeFields unpacks a stored extracted field map.
func decodeFields(raw []byte) (map[string]string, error) {
	fields := make(map[string]string)
	if len(raw) == 0 {
		return fields, nil
	}
	if errDecode := json.Unmarshal(raw, &fields); errDecode != nil {
		return nil, errDecode
	}
	return fields, nil
}

// runConcurrency reads the per-order item concurrency from settings.
func (r *Runner) runConcurrency(ctx context.Context) int {
	var setting models.Setting
	errFind := r.db.WithContext(ctx).Where("key = ?", settings.RunMaxConcurrencyKey).First(&setting).Error
	if errFind != nil {
		return settings.DefaultRunMaxConcurrency
	}
	var value int
	if errDecode := json.Unmarshal(setting.Value, &value); errDecode != nil || value <= 0 {
		return settings.DefaultRunMaxConcurrency
	}
	return value
}
