package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/afero"

	appLog "eventtimers/internal/log"
)

//go:embed default_catalog.json
var defaultDocument []byte

// DefaultDocument is the document shipped with the binary, used when no
// local copy exists yet.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultDocument...)
}

// Load reads the document at path. A missing file falls back to the built-in
// document; a present but unparsable file is an error so a broken update is
// never silently replaced.
func Load(fsys afero.Fs, path string, now time.Time, loc *time.Location) (*Catalog, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("catalog not found, using built-in document", "path", path)
			return Parse(defaultDocument, now, loc)
		}
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	c, err := Parse(data, now, loc)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	appLog.Info("catalog loaded",
		"path", path,
		"version", c.Version,
		"tracks", len(c.Tracks),
	)
	return c, nil
}
