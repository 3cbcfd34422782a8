package ann

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fedivid/recoserver/internal/models"
)

// snapshotRow is one line of the JSONL index snapshot
type snapshotRow struct {
	VideoID        int64     `json:"video_id"`
	InstanceDomain string    `json:"instance_domain"`
	Vector         []float32 `json:"vector"`
}

// Load reads a JSONL snapshot into a new index. Any error here is fatal to
// the caller: the process must refuse to start rather than serve degraded
// results from an empty or half-loaded index.
func Load(path string, dim int, normalize bool) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index snapshot: %w", err)
	}
	defer f.Close()

	ix := NewIndex(dim, normalize)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var row snapshotRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("invalid snapshot row at line %d: %w", line, err)
		}
		key := models.VideoKey{VideoID: row.VideoID, InstanceDomain: row.InstanceDomain}
		if err := ix.Add(key, row.Vector); err != nil {
			return nil, fmt.Errorf("snapshot row at line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index snapshot: %w", err)
	}

	return ix, nil
}

// Save writes the index contents as a JSONL snapshot
func (ix *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index snapshot: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for i, key := range ix.keys {
		row := snapshotRow{
			VideoID:        key.VideoID,
			InstanceDomain: key.InstanceDomain,
			Vector:         ix.vectors[i],
		}
		if err := enc.Encode(&row); err != nil {
			return fmt.Errorf("failed to write snapshot row: %w", err)
		}
	}

	return w.Flush()
}
