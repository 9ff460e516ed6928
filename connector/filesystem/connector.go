// Package filesystem implements a connector.Connector that walks a
// directory tree and publishes one Document per JSON file found.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kmwllc/lucille-go/document"
)

// Connector walks Root for files matching Extension and publishes each as a
// Document. The document id defaults to the file's path relative to Root
// unless the file itself carries an "id" field, in which case that wins.
type Connector struct {
	Root      string
	Extension string
}

// New constructs a Connector rooted at root, restricted to files ending in
// extension (e.g. ".json").
func New(root, extension string) *Connector {
	return &Connector{Root: root, Extension: extension}
}

// Name identifies this connector for logging.
func (c *Connector) Name() string { return fmt.Sprintf("filesystem(%s)", c.Root) }

// Run walks the tree once, publishing every matching file in lexical
// traversal order, then returns.
func (c *Connector) Run(ctx context.Context, publish func(context.Context, *document.Document) error) error {
	return filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("filesystem connector: walking %s: %w", path, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, c.Extension) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("filesystem connector: reading %s: %w", path, err)
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("filesystem connector: %s is not valid json: %w", path, err)
		}
		if _, ok := raw[document.IDField].(string); !ok {
			rel, err := filepath.Rel(c.Root, path)
			if err != nil {
				rel = path
			}
			raw[document.IDField] = rel
			if data, err = json.Marshal(raw); err != nil {
				return fmt.Errorf("filesystem connector: re-encoding %s: %w", path, err)
			}
		}

		doc, err := document.FromJSON(data)
		if err != nil {
			return fmt.Errorf("filesystem connector: %s: %w", path, err)
		}
		return publish(ctx, doc)
	})
}
