package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// CSVSink writes time,cash,equity rows to a file.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates the file (and parent directories) and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(file)
	if err := w.Write([]string{"time", "cash", "equity"}); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &CSVSink{file: file, w: w}, nil
}

// Record implements Sink.
func (c *CSVSink) Record(ts time.Time, cash, equity float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return fmt.Errorf("csv sink closed")
	}
	return c.w.Write([]string{
		ts.UTC().Format(time.RFC3339),
		strconv.FormatFloat(cash, 'f', 8, 64),
		strconv.FormatFloat(equity, 'f', 8, 64),
	})
}

// Close flushes buffered rows and closes the file.
func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	c.w.Flush()
	err := c.w.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.file = nil
	return err
}
