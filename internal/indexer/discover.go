package indexer

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	classSuffix = ".class"
	jarSuffix   = ".jar"

	// JarSeparator joins an archive path and the entry inside it
	JarSeparator = "!/"
)

// source is one class file to index: a file on disk or an entry inside a jar
type source struct {
	Path    string // relative to the project root, slash separated
	entry   string // entry name inside the jar, "" for plain files
	Size    int64
	ModTime time.Time
}

// unit is read by one worker: a single class file, or every selected entry of one jar
type unit struct {
	abs     string
	jar     bool
	sources []source
}

// matcher applies include and exclude globs to project relative paths
type matcher struct {
	include []string
	exclude []string
}

func (m matcher) excluded(path string) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

func (m matcher) included(paths ...string) bool {
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		for _, path := range paths {
			if ok, _ := doublestar.Match(p, path); ok {
				return true
			}
		}
	}
	return false
}

// discoverFiles finds class files and jar entries under rootPath
func (idx *Indexer) discoverFiles(rootPath string, config *Config) ([]unit, int, error) {
	m := matcher{include: config.Include, exclude: config.Exclude}
	var units []unit
	tooLarge := 0

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			// Skip hidden directories
			if path != rootPath && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			if rel != "." && m.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, classSuffix):
			if m.excluded(rel) || !m.included(rel) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > config.MaxFileSize {
				tooLarge++
				return nil
			}
			units = append(units, unit{
				abs:     path,
				sources: []source{{Path: rel, Size: info.Size(), ModTime: info.ModTime()}},
			})

		case strings.HasSuffix(path, jarSuffix):
			if m.excluded(rel) {
				return nil
			}
			sources, skipped, err := listJar(path, rel, m, config.MaxFileSize)
			if err != nil {
				// A broken archive is reported, not fatal
				log.Printf("Skipping unreadable archive %s: %v", rel, err)
				return nil
			}
			tooLarge += skipped
			if len(sources) > 0 {
				units = append(units, unit{abs: path, jar: true, sources: sources})
			}
		}
		return nil
	})

	return units, tooLarge, err
}

// listJar returns the class entries of the archive at path that pass the filters
func listJar(path, rel string, m matcher, maxSize int64) ([]source, int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = zr.Close() }()

	var sources []source
	skipped := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, classSuffix) {
			continue
		}
		entryPath := rel + JarSeparator + f.Name
		if m.excluded(entryPath) || !m.included(rel, entryPath) {
			continue
		}
		if int64(f.UncompressedSize64) > maxSize {
			skipped++
			continue
		}
		sources = append(sources, source{
			Path:    entryPath,
			entry:   f.Name,
			Size:    int64(f.UncompressedSize64),
			ModTime: f.Modified,
		})
	}
	return sources, skipped, nil
}

// readUnit calls fn with the content of every source in u
func readUnit(u unit, fn func(source, []byte) error) error {
	if !u.jar {
		data, err := os.ReadFile(u.abs)
		if err != nil {
			return err
		}
		return fn(u.sources[0], data)
	}

	zr, err := zip.OpenReader(u.abs)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	for _, src := range u.sources {
		f, ok := entries[src.entry]
		if !ok {
			return fmt.Errorf("%s: entry %s disappeared", u.abs, src.entry)
		}
		data, err := readZipEntry(f)
		if err != nil {
			return fmt.Errorf("%s: %w", src.Path, err)
		}
		if err := fn(src, data); err != nil {
			return err
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
