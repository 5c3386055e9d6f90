package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cpipe/internal/model"
)

// DumpRaw writes one fetched payload under <root>/raw/<provider>/<resource>/
// before normalization runs, and returns the written path. The dump is the
// audit trail: normalized rows point back to it through their raw_file column.
func DumpRaw(root string, rec model.RawRecord, runID string, now time.Time) (string, error) {
	dir := filepath.Join(root, "raw", rec.Provider, rec.Resource)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	name := now.UTC().Format("2006-01-02T15-04-05Z") + "_" + runID
	if rec.Tag != "" {
		name += "_" + sanitizeTag(rec.Tag)
	}
	path := filepath.Join(dir, name+".json")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, rec.Payload, "", "  "); err != nil {
		return "", fmt.Errorf("indent payload: %w", err)
	}
	pretty.WriteByte('\n')
	if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func sanitizeTag(tag string) string {
	tag = strings.ToLower(tag)
	tag = strings.ReplaceAll(tag, " ", "-")
	return strings.ReplaceAll(tag, "/", "-")
}
