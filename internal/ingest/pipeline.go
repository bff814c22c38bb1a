// Package ingest streams MongoDB log files through the classifier and into a
// sink in bounded batches. Files are read line by line so multi-gigabyte logs
// never load into memory, and every record carries the byte offset and line
// number it came from.
package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/mirador-slowlog/internal/classifier"
	"github.com/miradorstack/mirador-slowlog/internal/metrics"
	"github.com/miradorstack/mirador-slowlog/internal/models"
)

// Sink receives classified batches. Exactly one ingest run may hold the sink
// at a time; Begin fails while another run is active.
type Sink interface {
	BeginIngest() error
	AppendBatch(batch models.Batch) error
	EndIngest() models.IngestTotals
}

// Summary reports the outcome of one ingest run.
type Summary struct {
	Files           int                 `json:"files"`
	Lines           int64               `json:"lines"`
	Totals          models.IngestTotals `json:"totals"`
	Skipped         map[string]int64    `json:"skipped"`
	DurationSeconds float64             `json:"duration_seconds"`
}

// Pipeline reads log files, classifies each line, and flushes batches into
// the sink.
type Pipeline struct {
	logger     *slog.Logger
	classifier *classifier.Classifier
	sink       Sink
	batchSize  int
}

// NewPipeline constructs a Pipeline writing to the given sink.
func NewPipeline(logger *slog.Logger, sink Sink, batchSize int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Pipeline{
		logger:     logger,
		classifier: classifier.New(logger),
		sink:       sink,
		batchSize:  batchSize,
	}
}

// Run ingests the given files in order. On error the run still ends cleanly:
// batches flushed so far stay in the sink and the sink's ingest lock is
// released.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Summary, error) {
	started := time.Now()
	summary := Summary{Skipped: make(map[string]int64)}

	if len(paths) == 0 {
		return summary, fmt.Errorf("ingest: no input files")
	}
	if err := p.sink.BeginIngest(); err != nil {
		return summary, err
	}

	var batch models.Batch
	var runErr error
	for _, path := range paths {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		if runErr = p.ingestFile(ctx, path, &batch, &summary); runErr != nil {
			break
		}
		summary.Files++
	}
	if runErr == nil && !batch.Empty() {
		runErr = p.sink.AppendBatch(batch)
	}

	summary.Totals = p.sink.EndIngest()
	summary.DurationSeconds = time.Since(started).Seconds()
	metrics.ObserveIngest(time.Since(started))

	p.logger.Info("ingest finished",
		"files", summary.Files,
		"lines", summary.Lines,
		"rows", summary.Totals.Rows(),
		"duration_s", summary.DurationSeconds,
	)
	return summary, runErr
}

func (p *Pipeline) ingestFile(ctx context.Context, path string, batch *models.Batch, summary *Summary) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("ingest: gzip %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	buffered := bufio.NewReaderSize(reader, 1<<20)
	var offset int64
	var lineNumber int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := buffered.ReadString('\n')
		if len(line) > 0 {
			lineNumber++
			prov := models.Provenance{
				FilePath:   path,
				FileOffset: offset,
				LineNumber: lineNumber,
				LineLength: len(line),
			}
			offset += int64(len(line))
			summary.Lines++
			p.classifyLine(line, prov, batch, summary)

			if batch.Len() >= p.batchSize {
				if err := p.sink.AppendBatch(*batch); err != nil {
					return err
				}
				*batch = models.Batch{}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("ingest: read %s: %w", path, readErr)
		}
	}
}

func (p *Pipeline) classifyLine(line string, prov models.Provenance, batch *models.Batch, summary *Summary) {
	result, skip := p.classifier.Classify(line, prov)
	switch {
	case result.SlowQuery != nil:
		batch.SlowQueries = append(batch.SlowQueries, *result.SlowQuery)
		metrics.CountLine(metrics.LineSlowQuery)
	case result.Authentication != nil:
		batch.Authentications = append(batch.Authentications, *result.Authentication)
		metrics.CountLine(metrics.LineAuthentication)
	case result.Connection != nil:
		batch.Connections = append(batch.Connections, *result.Connection)
		metrics.CountLine(metrics.LineConnection)
	default:
		summary.Skipped[string(skip)]++
		if skip == classifier.SkipParseError {
			metrics.CountLine(metrics.LineParseError)
		} else {
			metrics.CountLine(metrics.LineSkipped)
		}
	}
}
