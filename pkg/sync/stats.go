package sync

import "sync/atomic"

// Stats counts the outcome of sync passes. Counters are atomic so a status
// surface can snapshot them while a pass is running.
type Stats struct {
	booksExamined        atomic.Int64
	booksMatched         atomic.Int64
	progressUpdated      atomic.Int64
	noChange             atomic.Int64
	unmatched            atomic.Int64
	errors               atomic.Int64
	annotationsImported  atomic.Int64
	annotationsDuplicate atomic.Int64
	vocabularyImported   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	BooksExamined        int64 `json:"books_examined"`
	BooksMatched         int64 `json:"books_matched"`
	ProgressUpdated      int64 `json:"progress_updated"`
	NoChange             int64 `json:"no_change"`
	Unmatched            int64 `json:"unmatched"`
	Errors               int64 `json:"errors"`
	AnnotationsImported  int64 `json:"annotations_imported"`
	AnnotationsDuplicate int64 `json:"annotations_duplicate"`
	VocabularyImported   int64 `json:"vocabulary_imported"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BooksExamined:        s.booksExamined.Load(),
		BooksMatched:         s.booksMatched.Load(),
		ProgressUpdated:      s.progressUpdated.Load(),
		NoChange:             s.noChange.Load(),
		Unmatched:            s.unmatched.Load(),
		Errors:               s.errors.Load(),
		AnnotationsImported:  s.annotationsImported.Load(),
		AnnotationsDuplicate: s.annotationsDuplicate.Load(),
		VocabularyImported:   s.vocabularyImported.Load(),
	}
}
