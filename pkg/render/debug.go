package render

import (
	"fmt"
	"os"
	"path/filepath"
)

// DebugStore writes candidate HTML to disk for offline inspection.
type DebugStore struct {
	Dir string
}

// Save writes the raw and truncated HTML of c. File names are content
// addressed, so repeated renders of the same page overwrite each other.
func (d *DebugStore) Save(c Candidate) ([]string, error) {
	if d == nil || d.Dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating debug dir: %w", err)
	}

	files := map[string]string{
		fmt.Sprintf("html-%s.html", c.Prepped.BaseName):           c.HTML,
		fmt.Sprintf("html-%s.truncated.html", c.Prepped.BaseName): c.Prepped.Truncated,
	}
	var written []string
	for name, content := range files {
		path := filepath.Join(d.Dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
