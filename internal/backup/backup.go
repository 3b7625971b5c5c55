// Package backup archives the fleetscope audit database and configuration
// into a tar.gz file and restores them.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HerbHall/fleetscope/internal/store"
)

// maxEntrySize bounds a single restored file.
const maxEntrySize = 1 << 30

// ErrUnsafeEntry is returned for archive entries that would escape the
// restore directory.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// Create writes a tar.gz archive holding the database at dbPath and, when
// it exists, the config file at configPath. The database WAL is checkpointed
// first so the archived file is self-contained.
func Create(ctx context.Context, dbPath, configPath, outputPath string) (err error) {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %w", err)
	}
	if err := checkpoint(ctx, dbPath); err != nil {
		return fmt.Errorf("checkpoint %s: %w", dbPath, err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	files := []string{dbPath}
	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			files = append(files, configPath)
		}
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", f, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// Restore extracts archivePath into dir and returns the restored file names.
// Entries with directories or parent references are rejected.
func Restore(ctx context.Context, archivePath, dir string) ([]string, error) {
	in, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var restored []string
	tr := tar.NewReader(gr)
	for {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return restored, nil
		}
		if err != nil {
			return restored, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name
		if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			return restored, fmt.Errorf("%w: %q", ErrUnsafeEntry, hdr.Name)
		}
		if err := writeFile(filepath.Join(dir, name), tr, hdr.FileInfo().Mode().Perm()); err != nil {
			return restored, fmt.Errorf("restore %s: %w", name, err)
		}
		restored = append(restored, name)
	}
}

func checkpoint(ctx context.Context, dbPath string) error {
	db, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.DB().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func writeFile(path string, r io.Reader, perm os.FileMode) (err error) {
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	n, err := io.Copy(f, io.LimitReader(r, maxEntrySize+1))
	if err != nil {
		return err
	}
	if n > maxEntrySize {
		return fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return nil
}
