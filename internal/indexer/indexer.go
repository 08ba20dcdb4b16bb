package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/parser"
	"github.com/avalda/msgview/internal/scanner"
)

// Summary rows are written in batches of this size.
const upsertBatchSize = 200

// Indexer keeps the summary index in sync with the archive directory
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	logger      *zap.Logger
	concurrency int // Number of concurrent workers
}

// NewIndexer creates a new indexer over the given archive root
func NewIndexer(database *db.DB, archiveRoot string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		db:          database,
		scanner:     scanner.NewScanner(archiveRoot),
		logger:      logger,
		concurrency: runtime.NumCPU() * 2, // 2x CPUs for optimal I/O parallelism
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// IndexResult contains statistics about an indexing operation
type IndexResult struct {
	TotalFound  int
	Indexed     int // new or refreshed rows
	Skipped     int // unchanged since last run
	Failed      int // parse failures, indexed as placeholders
	Pruned      int // rows removed because their files disappeared
	FailedFiles []string
}

// IndexAll synchronizes the index with the archive: new and changed files
// are parsed and stored, unchanged files are skipped, unparsable files get
// a placeholder row, and rows for removed files are pruned.
func (idx *Indexer) IndexAll() (*IndexResult, error) {
	return idx.run(nil)
}

// IndexWithProgress is IndexAll with a per-file progress callback
func (idx *Indexer) IndexWithProgress(progress func(current, total int, filename string)) (*IndexResult, error) {
	return idx.run(progress)
}

type indexStatus int

const (
	statusIndexed indexStatus = iota
	statusSkipped
	statusFailed
)

type workItem struct {
	filename string
	status   indexStatus
	row      *db.Email
}

func (idx *Indexer) run(progress func(current, total int, filename string)) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	states, err := idx.db.FileStates()
	if err != nil {
		return nil, fmt.Errorf("failed to load file states: %w", err)
	}

	result := &IndexResult{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	idx.logger.Info("indexing archive",
		zap.Int("files", result.TotalFound),
		zap.Int("workers", idx.concurrency))

	fileChan := make(chan string, len(files))
	resultChan := make(chan workItem, len(files))

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.indexWorker(&wg, states, fileChan, resultChan)
	}

	for _, file := range files {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results, writing rows in batches
	pending := make([]*db.Email, 0, upsertBatchSize)
	processed := 0
	for item := range resultChan {
		processed++
		if progress != nil {
			progress(processed, result.TotalFound, item.filename)
		}

		switch item.status {
		case statusIndexed:
			result.Indexed++
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, item.filename)
		}

		if item.row != nil {
			pending = append(pending, item.row)
			if len(pending) >= upsertBatchSize {
				if err := idx.db.UpsertEmailsBatch(pending); err != nil {
					return nil, fmt.Errorf("failed to store summary batch: %w", err)
				}
				pending = pending[:0]
			}
		}
	}

	if len(pending) > 0 {
		if err := idx.db.UpsertEmailsBatch(pending); err != nil {
			return nil, fmt.Errorf("failed to store summary batch: %w", err)
		}
	}

	pruned, err := idx.prune(files)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned

	idx.logger.Info("indexing complete",
		zap.Int("indexed", result.Indexed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("pruned", result.Pruned))

	return result, nil
}

// indexWorker processes filenames from the file channel. The states map is
// read-only once workers start.
func (idx *Indexer) indexWorker(wg *sync.WaitGroup, states map[string]db.FileState, fileChan <-chan string, resultChan chan<- workItem) {
	defer wg.Done()

	for filename := range fileChan {
		status, row := idx.processFile(filename, states)
		resultChan <- workItem{
			filename: filename,
			status:   status,
			row:      row,
		}
	}
}

// processFile decides whether one file needs (re)indexing and produces its
// summary row. Unparsable files produce a placeholder row so they stay
// visible in listings.
func (idx *Indexer) processFile(filename string, states map[string]db.FileState) (indexStatus, *db.Email) {
	absPath := filepath.Join(idx.scanner.GetRootPath(), filepath.FromSlash(filename))

	info, err := os.Stat(absPath)
	if err != nil {
		idx.logger.Warn("failed to stat file",
			zap.String("file", filename),
			zap.Error(err))
		return statusFailed, nil
	}

	// Unchanged files keep their row. Same bytes parse the same, so this
	// also covers files whose previous parse failed.
	if prev, ok := states[filename]; ok &&
		prev.Size == info.Size() &&
		prev.MTime.Unix() == info.ModTime().Unix() {
		return statusSkipped, nil
	}

	mtime := db.NewNullTime(info.ModTime())

	summary, err := parser.ParseSummary(absPath)
	if err != nil {
		idx.logger.Warn("parse failed, indexing placeholder",
			zap.String("file", filename),
			zap.Error(err))
		return statusFailed, &db.Email{
			Filename: filename,
			Subject:  "[Parse Error] " + filename,
			Sender:   "Unknown",
			Date:     mtime,
			Size:     info.Size(),
			ParseOK:  false,
			MTime:    mtime,
		}
	}

	row := &db.Email{
		Filename:        filename,
		Subject:         summary.Subject,
		Sender:          summary.Sender,
		Recipients:      strings.Join(summary.Recipients, ", "),
		Size:            summary.Size,
		HasAttachments:  summary.HasAttachments,
		AttachmentCount: summary.AttachmentCount,
		ParseOK:         true,
		MTime:           mtime,
	}
	if summary.Date != nil {
		row.Date = db.NewNullTime(*summary.Date)
	}

	return statusIndexed, row
}

// prune deletes rows whose source files no longer exist
func (idx *Indexer) prune(scanned []string) (int, error) {
	present := make(map[string]bool, len(scanned))
	for _, name := range scanned {
		present[name] = true
	}

	indexed, err := idx.db.ListFilenames()
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed filenames: %w", err)
	}

	var missing []string
	for _, name := range indexed {
		if !present[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return 0, nil
	}

	if err := idx.db.DeleteEmailsBatch(missing); err != nil {
		return 0, fmt.Errorf("failed to prune missing files: %w", err)
	}

	for _, name := range missing {
		idx.logger.Debug("pruned missing file", zap.String("file", name))
	}

	return len(missing), nil
}
