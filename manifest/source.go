package manifest

import (
	"os"
	"path/filepath"
)

// Source locates manifest files. The set of sources is closed: use Dir,
// File or Files.
type Source interface {
	// manifestFiles returns candidate manifest paths in load order.
	// Candidates may not exist.
	manifestFiles() []string
	String() string
}

type dirSource string

// Dir reads dir/output.json.
func Dir(path string) Source { return dirSource(path) }

func (d dirSource) manifestFiles() []string {
	return []string{filepath.Join(string(d), FileName)}
}

func (d dirSource) String() string { return "dir:" + string(d) }

type fileSource string

// File reads a manifest file directly.
func File(path string) Source { return fileSource(path) }

func (f fileSource) manifestFiles() []string { return []string{string(f)} }

func (f fileSource) String() string { return "file:" + string(f) }

type filesSource []string

// Files reads a file collection. Each entry is either a directory holding
// output.json or a manifest file itself; other files are ignored.
// Manifests are concatenated in entry order.
func Files(paths ...string) Source { return filesSource(paths) }

func (fs filesSource) manifestFiles() []string {
	var out []string
	for _, p := range fs {
		info, err := os.Stat(p)
		switch {
		case err == nil && info.IsDir():
			out = append(out, filepath.Join(p, FileName))
		case filepath.Base(p) == FileName:
			out = append(out, p)
		}
	}
	return out
}

func (fs filesSource) String() string { return "files" }
