package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"momentum-rebalancer/internal/execution"
)

// fillRecord is the on-disk shape of one fill line.
type fillRecord struct {
	Time       time.Time `json:"time"`
	Handle     string    `json:"handle"`
	Asset      string    `json:"asset"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Notional   float64   `json:"notional"`
	Commission float64   `json:"commission"`
}

// JSONLRecorder appends fills as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	err  error
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single fill. Zero-quantity acknowledgements are skipped. The first write
// error is kept and reported by Err.
func (r *JSONLRecorder) Record(fill execution.Fill) {
	if fill.Qty <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil || r.err != nil {
		return
	}
	r.err = r.enc.Encode(fillRecord{
		Time:       fill.Ts.UTC(),
		Handle:     string(fill.Handle),
		Asset:      string(fill.Asset),
		Side:       string(fill.Side),
		Qty:        fill.Qty,
		Price:      fill.Price,
		Notional:   fill.Notional(),
		Commission: fill.Commission,
	})
}

// Err returns the first write failure.
func (r *JSONLRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
