package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document, first *domain.Version) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO documents (
	id, title, document_type, category, subcategory, description, access_level,
	current_version, head_version, created_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.Title, doc.DocumentType, doc.Category, doc.Subcategory, doc.Description,
		string(doc.AccessLevel), doc.CurrentVersion, doc.HeadVersion, doc.CreatedBy,
		doc.CreatedAt, doc.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if err := insertVersion(ctx, tx, first); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, document_type, category, subcategory, description, access_level,
	current_version, head_version, created_by, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var accessLevel string
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.DocumentType, &doc.Category, &doc.Subcategory, &doc.Description,
		&accessLevel, &doc.CurrentVersion, &doc.HeadVersion, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.AccessLevel = domain.AccessLevel(accessLevel)
	return &doc, nil
}

// AppendVersion advances the head under the optimistic check and
// inserts the new version in one transaction. A moved head surfaces
// as domain.ErrConcurrentModification.
func (r *DocumentRepository) AppendVersion(ctx context.Context, documentID string, expectedHead int, v *domain.Version) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE documents
SET head_version = $3, current_version = $3, updated_at = $4
WHERE id = $1 AND head_version = $2
`, documentID, expectedHead, v.Number, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance document head: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check document existence: %w", err)
		}
		if !exists {
			return domain.WrapError(domain.ErrNotFound, "append version", fmt.Errorf("document %s", documentID))
		}
		return domain.WrapError(domain.ErrConcurrentModification, "append version",
			fmt.Errorf("document %s head moved past %d", documentID, expectedHead))
	}

	if err := insertVersion(ctx, tx, v); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, v *domain.Version) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO versions (
	document_id, number, blob_hash, size, media_type, skip_ocr, status, status_detail,
	note, created_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		v.DocumentID, v.Number, v.BlobHash, v.Size, v.MediaType, v.SkipOcr,
		string(v.Status), v.StatusDetail, v.Note, v.CreatedBy, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

const versionColumns = `
document_id, number, blob_hash, size, media_type, skip_ocr, ocr_text, ocr_confidence,
ocr_warnings, ocr_done, classification, status, status_detail, note, created_by, created_at`

func (r *DocumentRepository) GetVersion(ctx context.Context, documentID string, number int) (*domain.Version, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+versionColumns+`
FROM versions
WHERE document_id = $1 AND number = $2
`, documentID, number)

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get version",
				fmt.Errorf("document %s version %d", documentID, number))
		}
		return nil, err
	}
	return v, nil
}

// ListVersions returns the chain oldest first.
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]domain.Version, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+versionColumns+`
FROM versions
WHERE document_id = $1
ORDER BY number ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

// UpdateVersionStatus transitions the version and repoints the
// document's current version at the highest non-failed number. The
// repoint runs on every transition: a failed version that is later
// reprocessed to indexed must move the pointer back up.
func (r *DocumentRepository) UpdateVersionStatus(ctx context.Context, documentID string, number int, status domain.VersionStatus, detail string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE versions
SET status = $3, status_detail = $4
WHERE document_id = $1 AND number = $2
`, documentID, number, string(status), detail)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update version status",
			fmt.Errorf("document %s version %d", documentID, number))
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET current_version = COALESCE(
	(SELECT MAX(number) FROM versions WHERE document_id = $1 AND status <> 'failed'), 0),
	updated_at = $2
WHERE id = $1
`, documentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("repoint current version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) SaveOcrResult(ctx context.Context, documentID string, number int, res domain.OcrResult) error {
	warnings, err := json.Marshal(append([]string{}, res.Warnings...))
	if err != nil {
		return fmt.Errorf("marshal ocr warnings: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE versions
SET ocr_text = $3, ocr_confidence = $4, ocr_warnings = $5, ocr_done = TRUE
WHERE document_id = $1 AND number = $2
`, documentID, number, res.Text, res.Confidence, warnings)
	if err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ocr rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "save ocr result",
			fmt.Errorf("document %s version %d", documentID, number))
	}
	return nil
}

// SaveClassification stores the result on the version and fills the
// document's category fields when the uploader left them blank.
func (r *DocumentRepository) SaveClassification(ctx context.Context, documentID string, number int, cls domain.ClassificationResult) error {
	payload, err := json.Marshal(cls)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin classification tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE versions
SET classification = $3
WHERE document_id = $1 AND number = $2
`, documentID, number, payload)
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("classification rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "save classification",
			fmt.Errorf("document %s version %d", documentID, number))
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET category = $2, subcategory = $3, updated_at = $4
WHERE id = $1 AND category = ''
`, documentID, cls.Category, cls.Subcategory, time.Now().UTC()); err != nil {
		return fmt.Errorf("apply classification to document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit classification tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*domain.Version, error) {
	var v domain.Version
	var status string
	var warningsRaw []byte
	var classificationRaw []byte

	err := row.Scan(
		&v.DocumentID, &v.Number, &v.BlobHash, &v.Size, &v.MediaType, &v.SkipOcr,
		&v.OcrText, &v.OcrConfidence, &warningsRaw, &v.OcrDone, &classificationRaw,
		&status, &v.StatusDetail, &v.Note, &v.CreatedBy, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warningsRaw, &v.OcrWarnings); err != nil {
		return nil, fmt.Errorf("unmarshal ocr warnings: %w", err)
	}
	if len(classificationRaw) > 0 {
		var cls domain.ClassificationResult
		if err := json.Unmarshal(classificationRaw, &cls); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
		v.Classification = &cls
	}
	v.Status = domain.VersionStatus(status)
	return &v, nil
}
