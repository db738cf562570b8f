package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

// Retrier runs a pipeline stage under the configured retry policy.
// retryable reports whether an error is worth another attempt.
type Retrier interface {
	Do(ctx context.Context, stage string, fn func(context.Context) error, retryable func(error) bool) error
}

type StageTimeouts struct {
	Ocr      time.Duration
	Classify time.Duration
	Index    time.Duration
}

func (t StageTimeouts) normalize() StageTimeouts {
	out := t
	if out.Ocr <= 0 {
		out.Ocr = 2 * time.Minute
	}
	if out.Classify <= 0 {
		out.Classify = 30 * time.Second
	}
	if out.Index <= 0 {
		out.Index = 30 * time.Second
	}
	return out
}

// ProcessUseCase drives a committed version through the pipeline:
// pending -> ocr_done -> classified -> indexed. A stage failure marks
// the version failed with the stage name and error retained; already
// persisted stage outputs are skipped on reprocessing, so a crashed or
// failed run resumes where it stopped. Cancellation leaves the current
// status untouched.
type ProcessUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.OcrExtractor
	classifier ports.Classifier
	index      ports.SearchIndex
	locks      *DocumentLocks
	retrier    Retrier
	timeouts   StageTimeouts
}

func NewProcessUseCase(
	repo ports.DocumentRepository,
	extractor ports.OcrExtractor,
	classifier ports.Classifier,
	index ports.SearchIndex,
	locks *DocumentLocks,
	retrier Retrier,
	timeouts StageTimeouts,
) *ProcessUseCase {
	return &ProcessUseCase{
		repo:       repo,
		extractor:  extractor,
		classifier: classifier,
		index:      index,
		locks:      locks,
		retrier:    retrier,
		timeouts:   timeouts.normalize(),
	}
}

func (uc *ProcessUseCase) ProcessVersion(ctx context.Context, documentID string, number int) error {
	v, err := uc.repo.GetVersion(ctx, documentID, number)
	if err != nil {
		return err
	}
	if v.Status == domain.StatusIndexed {
		return nil
	}
	doc, err := uc.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if !v.OcrDone {
		if err := uc.runOcrStage(ctx, doc, v); err != nil {
			return err
		}
	}
	if v.Classification == nil {
		if err := uc.runClassifyStage(ctx, doc, v); err != nil {
			return err
		}
	}
	return uc.runIndexStage(ctx, doc, v)
}

// runOcrStage extracts text without holding the document lock; only
// the result commit is serialized. Corrupt input is permanent: the
// warning is recorded and the pipeline proceeds without text.
func (uc *ProcessUseCase) runOcrStage(ctx context.Context, doc *domain.Document, v *domain.Version) error {
	var res domain.OcrResult
	if v.SkipOcr {
		res = domain.OcrResult{Warnings: []string{"ocr-skipped"}}
	} else {
		err := uc.retrier.Do(ctx, "ocr", func(stageCtx context.Context) error {
			stageCtx, cancel := context.WithTimeout(stageCtx, uc.timeouts.Ocr)
			defer cancel()
			var extractErr error
			res, extractErr = uc.extractor.Extract(stageCtx, v.BlobRef())
			return extractErr
		}, isTransientStageError)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return err
		case domain.IsKind(err, domain.ErrCorruptInput):
			res = domain.OcrResult{Warnings: []string{fmt.Sprintf("corrupt-input: %v", err)}}
		default:
			return uc.markFailed(ctx, v, "ocr", err)
		}
	}

	release := uc.locks.Acquire(doc.ID)
	defer release()
	if err := uc.repo.SaveOcrResult(ctx, doc.ID, v.Number, res); err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	if err := uc.repo.UpdateVersionStatus(ctx, doc.ID, v.Number, domain.StatusOcrDone, ""); err != nil {
		return fmt.Errorf("set status=ocr_done: %w", err)
	}
	v.OcrText = res.Text
	v.OcrConfidence = res.Confidence
	v.OcrWarnings = res.Warnings
	v.OcrDone = true
	v.Status = domain.StatusOcrDone
	return nil
}

// runClassifyStage degrades to document-type-only scoring on empty
// text; the classifier never fails hard on absent text. The document's
// category fields are only overwritten when the uploader left them
// blank.
func (uc *ProcessUseCase) runClassifyStage(ctx context.Context, doc *domain.Document, v *domain.Version) error {
	var cls domain.ClassificationResult
	err := uc.retrier.Do(ctx, "classify", func(stageCtx context.Context) error {
		stageCtx, cancel := context.WithTimeout(stageCtx, uc.timeouts.Classify)
		defer cancel()
		var classifyErr error
		cls, classifyErr = uc.classifier.Classify(stageCtx, v.OcrText, domain.ClassifyInput{
			Title:        doc.Title,
			DocumentType: doc.DocumentType,
		})
		return classifyErr
	}, isTransientStageError)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return uc.markFailed(ctx, v, "classify", err)
	}

	release := uc.locks.Acquire(doc.ID)
	defer release()
	if err := uc.repo.SaveClassification(ctx, doc.ID, v.Number, cls); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	if err := uc.repo.UpdateVersionStatus(ctx, doc.ID, v.Number, domain.StatusClassified, ""); err != nil {
		return fmt.Errorf("set status=classified: %w", err)
	}
	if doc.Category == "" {
		doc.Category = cls.Category
		doc.Subcategory = cls.Subcategory
	}
	v.Classification = &cls
	v.Status = domain.StatusClassified
	return nil
}

func (uc *ProcessUseCase) runIndexStage(ctx context.Context, doc *domain.Document, v *domain.Version) error {
	entry := domain.IndexEntry{
		DocumentID:   doc.ID,
		Version:      v.Number,
		Title:        doc.Title,
		Text:         v.OcrText,
		Category:     doc.Category,
		Subcategory:  doc.Subcategory,
		DocumentType: doc.DocumentType,
		AccessLevel:  doc.AccessLevel,
		CreatedAt:    v.CreatedAt,
	}
	err := uc.retrier.Do(ctx, "index", func(stageCtx context.Context) error {
		stageCtx, cancel := context.WithTimeout(stageCtx, uc.timeouts.Index)
		defer cancel()
		return uc.index.Index(stageCtx, entry)
	}, isTransientStageError)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return uc.markFailed(ctx, v, "index", err)
	}

	release := uc.locks.Acquire(doc.ID)
	defer release()
	if err := uc.repo.UpdateVersionStatus(ctx, doc.ID, v.Number, domain.StatusIndexed, ""); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}
	v.Status = domain.StatusIndexed
	return nil
}

func (uc *ProcessUseCase) markFailed(ctx context.Context, v *domain.Version, stage string, stageErr error) error {
	release := uc.locks.Acquire(v.DocumentID)
	defer release()
	detail := fmt.Sprintf("stage %s: %v", stage, stageErr)
	if err := uc.repo.UpdateVersionStatus(ctx, v.DocumentID, v.Number, domain.StatusFailed, detail); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", stageErr, err)
	}
	return fmt.Errorf("stage %s: %w", stage, stageErr)
}

func isTransientStageError(err error) bool {
	return domain.IsKind(err, domain.ErrEngineUnavailable) ||
		domain.IsKind(err, domain.ErrTemporary) ||
		errors.Is(err, context.DeadlineExceeded)
}
