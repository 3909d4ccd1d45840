package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/olehluchkiv/classweave/internal/mixin"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

const classSuffix = ".class"

// maxClassSize bounds a single class file read from an archive.
const maxClassSize = 64 << 20

// DirLoader resolves classes from a directory laid out by package, as a
// compiler output directory is.
type DirLoader struct {
	Root string
}

var _ mixin.ResourceLoader = DirLoader{}

func (l DirLoader) Resource(ctx context.Context, className string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(l.Root, filepath.FromSlash(className)+classSuffix)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", className, mixin.ErrResourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return b, nil
}

// JarLoader resolves classes from a jar file. Entries are indexed once when
// the jar is opened.
type JarLoader struct {
	path    string
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

var _ mixin.ResourceLoader = (*JarLoader)(nil)

// OpenJar opens and indexes a jar. Close releases the file handle.
func OpenJar(path string) (*JarLoader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening jar %s: %w", path, err)
	}
	l := &JarLoader{path: path, rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if strings.HasSuffix(f.Name, classSuffix) && !f.FileInfo().IsDir() {
			l.entries[strings.TrimSuffix(f.Name, classSuffix)] = f
		}
	}
	return l, nil
}

func (l *JarLoader) Close() error {
	return l.rc.Close()
}

// ClassNames returns the internal names of every class in the jar, sorted.
func (l *JarLoader) ClassNames() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *JarLoader) Resource(ctx context.Context, className string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok := l.entries[className]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", className, l.path, mixin.ErrResourceNotFound)
	}
	if f.UncompressedSize64 > maxClassSize {
		return nil, fmt.Errorf("%s in %s: entry too large (%d bytes)", className, l.path, f.UncompressedSize64)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s in %s: %w", className, l.path, err)
	}
	defer r.Close()
	b, err := io.ReadAll(io.LimitReader(r, maxClassSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s in %s: %w", className, l.path, err)
	}
	return b, nil
}

// Source is a set of classes to scan together with the loader that serves
// their bytes.
type Source struct {
	Loader  mixin.ResourceLoader
	Classes []string
	close   func() error
}

// Close releases resources held by the source's loader.
func (s *Source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open resolves path to a Source: a directory tree of class files, a jar, or
// a single class file.
func Open(ctx context.Context, path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	switch {
	case info.IsDir():
		classes, err := listDir(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Source{Loader: DirLoader{Root: path}, Classes: classes}, nil
	case strings.HasSuffix(path, ".jar") || strings.HasSuffix(path, ".zip"):
		jar, err := OpenJar(path)
		if err != nil {
			return nil, err
		}
		return &Source{Loader: jar, Classes: jar.ClassNames(), close: jar.Close}, nil
	case strings.HasSuffix(path, classSuffix):
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		name := singleName(path, b)
		return &Source{Loader: single{name: name, raw: b}, Classes: []string{name}}, nil
	}
	return nil, fmt.Errorf("%s is not a directory, jar or class file", path)
}

func listDir(ctx context.Context, root string) ([]string, error) {
	var classes []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, classSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		classes = append(classes, strings.TrimSuffix(filepath.ToSlash(rel), classSuffix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return classes, nil
}

// single serves one class file given directly on the command line. The
// class is keyed by its file name because its package is unknown until it
// is scanned.
// singleName keys a lone class file by the internal name it declares, so
// mixin implementations can be loaded from it. Unparseable bytes fall back
// to the file name and are reported when the class is scanned.
func singleName(path string, raw []byte) string {
	if res, err := scanner.Scan(raw); err == nil {
		return res.Summary.Name
	}
	return strings.TrimSuffix(filepath.Base(path), classSuffix)
}

type single struct {
	name string
	raw  []byte
}

func (s single) Resource(_ context.Context, className string) ([]byte, error) {
	if className != s.name {
		return nil, fmt.Errorf("%s: %w", className, mixin.ErrResourceNotFound)
	}
	return s.raw, nil
}
