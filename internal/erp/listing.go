package erp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProjectFileName is the per-directory settings file. It is never treated as
// a recording.
const ProjectFileName = "wepp_conf.json"

// Listing is the set of recordings found in a data directory.
type Listing struct {
	Dir         string
	Recordings  []string
	ProjectFile string
}

// Names returns the recording file names without directories.
func (l Listing) Names() []string {
	names := make([]string, len(l.Recordings))
	for i, path := range l.Recordings {
		names[i] = filepath.Base(path)
	}
	return names
}

// List returns the .json recordings in dir sorted by name. The project
// settings file is reported separately when present.
func List(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("read recordings directory: %w", err)
	}
	listing := Listing{Dir: dir}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ProjectFileName {
			listing.ProjectFile = filepath.Join(dir, name)
			continue
		}
		if strings.HasSuffix(name, ".json") {
			listing.Recordings = append(listing.Recordings, filepath.Join(dir, name))
		}
	}
	sort.Slice(listing.Recordings, func(i, j int) bool {
		return filepath.Base(listing.Recordings[i]) < filepath.Base(listing.Recordings[j])
	})
	return listing, nil
}
