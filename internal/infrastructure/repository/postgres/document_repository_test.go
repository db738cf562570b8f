package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/archivist/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetDocumentReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, document_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDocument(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendVersionMovedHeadIsConcurrentModification(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", 3, 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.AppendVersion(context.Background(), "doc-1", 3, &domain.Version{DocumentID: "doc-1", Number: 4})
	if !domain.IsKind(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendVersionUnknownDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WithArgs("ghost", 3, 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.AppendVersion(context.Background(), "ghost", 3, &domain.Version{DocumentID: "ghost", Number: 4})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendVersionAdvancesHeadAndInsertsVersion(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	v := &domain.Version{
		DocumentID: "doc-1",
		Number:     4,
		BlobHash:   "abc",
		Size:       12,
		MediaType:  "text/plain",
		Status:     domain.StatusPending,
		CreatedBy:  "alice",
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", 3, 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO versions").
		WithArgs(v.DocumentID, v.Number, v.BlobHash, v.Size, v.MediaType, v.SkipOcr,
			string(v.Status), v.StatusDetail, v.Note, v.CreatedBy, v.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.AppendVersion(context.Background(), "doc-1", 3, v); err != nil {
		t.Fatalf("AppendVersion() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateVersionStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE versions").
		WithArgs("missing", 1, string(domain.StatusIndexed), "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateVersionStatus(context.Background(), "missing", 1, domain.StatusIndexed, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateVersionStatusFailedRepointsCurrentVersion(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE versions").
		WithArgs("doc-1", 4, string(domain.StatusFailed), "stage ocr: engine down").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateVersionStatus(context.Background(), "doc-1", 4, domain.StatusFailed, "stage ocr: engine down")
	if err != nil {
		t.Fatalf("UpdateVersionStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateVersionStatusIndexedRepointsCurrentVersion(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	// a reprocessed version leaving failed must move the pointer back up
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE versions").
		WithArgs("doc-1", 3, string(domain.StatusIndexed), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateVersionStatus(context.Background(), "doc-1", 3, domain.StatusIndexed, "")
	if err != nil {
		t.Fatalf("UpdateVersionStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveOcrResultReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE versions").
		WithArgs("missing", 1, "text", 0.8, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveOcrResult(context.Background(), "missing", 1, domain.OcrResult{Text: "text", Confidence: 0.8})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveClassificationFillsBlankDocumentCategory(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE versions").
		WithArgs("doc-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", "Financial", "Invoice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveClassification(context.Background(), "doc-1", 2, domain.ClassificationResult{
		Category:    "Financial",
		Subcategory: "Invoice",
		Confidence:  0.9,
	})
	if err != nil {
		t.Fatalf("SaveClassification() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetVersionScansStoredFields(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"document_id", "number", "blob_hash", "size", "media_type", "skip_ocr",
		"ocr_text", "ocr_confidence", "ocr_warnings", "ocr_done", "classification",
		"status", "status_detail", "note", "created_by", "created_at",
	}).AddRow(
		"doc-1", 2, "abc", int64(42), "application/pdf", false,
		"extracted text", 0.75, []byte(`["low-confidence"]`), true, []byte(`{"category":"Legal","confidence":0.8}`),
		"indexed", "", "second draft", "alice", created,
	)
	mock.ExpectQuery("SELECT").
		WithArgs("doc-1", 2).
		WillReturnRows(rows)

	v, err := repo.GetVersion(context.Background(), "doc-1", 2)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if v.Status != domain.StatusIndexed {
		t.Fatalf("expected indexed status, got %q", v.Status)
	}
	if len(v.OcrWarnings) != 1 || v.OcrWarnings[0] != "low-confidence" {
		t.Fatalf("unexpected warnings %v", v.OcrWarnings)
	}
	if v.Classification == nil || v.Classification.Category != "Legal" {
		t.Fatalf("unexpected classification %+v", v.Classification)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetVersionReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT").
		WithArgs("doc-1", 9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetVersion(context.Background(), "doc-1", 9)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
