package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/targets"
)

var csvHeader = []string{"name", "industry", "country", "description", "detail_url", "detected_at"}

// CSVSink appends records to one CSV file per output partition.
type CSVSink struct {
	dir        string
	partitions partitions

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink writes partitions below dir, creating it if needed.
func NewCSVSink(dir string, catalog *targets.Catalog) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	return &CSVSink{
		dir:        dir,
		partitions: newPartitions(catalog),
		files:      make(map[string]*csvFile),
	}, nil
}

// Append writes records to the partition of target.
func (cs *CSVSink) Append(_ context.Context, target models.TargetID, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	out, err := cs.open(cs.partitions.name(target))
	if err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Name,
			r.Industry,
			r.Country,
			r.Description,
			r.DetailURL,
			r.DetectedAt.Format(time.RFC3339),
		}
		if err := out.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	out.writer.Flush()
	if err := out.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// open returns the file of partition, writing the header to new files.
func (cs *CSVSink) open(partition string) (*csvFile, error) {
	if out, ok := cs.files[partition]; ok {
		return out, nil
	}

	path := filepath.Join(cs.dir, partition+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	out := &csvFile{file: f, writer: writer}
	cs.files[partition] = out
	return out, nil
}

// Close flushes and closes every open partition.
func (cs *CSVSink) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var firstErr error
	for partition, out := range cs.files {
		out.writer.Flush()
		if err := out.writer.Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush csv writer: %w", err)
		}
		if err := out.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(cs.files, partition)
	}
	return firstErr
}

// JSONSink appends newline-delimited JSON records per output partition.
type JSONSink struct {
	dir        string
	partitions partitions

	mu    sync.Mutex
	files map[string]*jsonFile
}

type jsonFile struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

// NewJSONSink writes partitions below dir, creating it if needed.
func NewJSONSink(dir string, catalog *targets.Catalog) (*JSONSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	return &JSONSink{
		dir:        dir,
		partitions: newPartitions(catalog),
		files:      make(map[string]*jsonFile),
	}, nil
}

// Append writes records in JSONL format. Every line carries its target.
func (js *JSONSink) Append(_ context.Context, target models.TargetID, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	out, err := js.open(js.partitions.name(target))
	if err != nil {
		return err
	}
	for _, r := range records {
		line := struct {
			Target models.TargetID `json:"target"`
			models.Record
		}{Target: target, Record: r}
		if err := out.encoder.Encode(line); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := out.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

func (js *JSONSink) open(partition string) (*jsonFile, error) {
	if out, ok := js.files[partition]; ok {
		return out, nil
	}

	path := filepath.Join(js.dir, partition+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	out := &jsonFile{file: f, writer: buffer, encoder: json.NewEncoder(buffer)}
	js.files[partition] = out
	return out, nil
}

// Close flushes buffers and closes every open partition.
func (js *JSONSink) Close() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	var firstErr error
	for partition, out := range js.files {
		if err := out.writer.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush json writer: %w", err)
		}
		if err := out.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(js.files, partition)
	}
	return firstErr
}
