package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sagerenn/lexis/internal/container"
	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/loader"
)

// Import installs the dictionary at src and returns its installed id. Native
// files are copied and size-checked; anything else goes through the
// converter. format may be empty to detect it from the extension and name
// replaces the source file stem in the installed file name.
//
// When the destination already exists nothing is copied or converted: the
// existing id is returned and missing metadata is backfilled. Failures are
// *dict.ImportError values naming the failed stage; no partial file is left
// behind except when the file was written but its metadata could not be
// read.
func (r *Registry) Import(ctx context.Context, src, format, name string) (string, error) {
	r.importMu.Lock()
	defer r.importMu.Unlock()

	path, err := validateSource(src, format)
	if err != nil {
		return "", &dict.ImportError{Stage: dict.StageValidation, Path: src, Err: err}
	}
	stem := strings.TrimSpace(name)
	if stem == "" {
		stem = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	filename, err := fileName(stem + container.Ext)
	if err != nil {
		return "", &dict.ImportError{Stage: dict.StageValidation, Path: src, Err: err}
	}
	dest := r.pathOf(filename)

	if _, err := os.Stat(dest); err == nil {
		r.backfill(filename, stem)
		r.log.Info("dictionary already imported", "installed_id", filename)
		return filename, nil
	}

	if isNative(path, format) {
		if err := copyVerified(path, dest); err != nil {
			return "", &dict.ImportError{Stage: dict.StageCopy, Path: src, Err: err}
		}
	} else {
		if err := r.conv.Convert(ctx, path, dest, format); err != nil {
			_ = os.Remove(dest)
			return "", &dict.ImportError{Stage: dict.StageConversion, Path: src, Err: fmt.Errorf("%w: %w", dict.ErrConversion, err)}
		}
	}

	rec, err := r.extractMetadata(filename, stem)
	if err != nil {
		return "", &dict.ImportError{Stage: dict.StageMetadata, Path: src, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(filename); i >= 0 {
		r.records[i] = rec
	} else {
		r.records = append(r.records, rec)
	}
	if err := r.saveMetadataLocked(); err != nil {
		return "", &dict.ImportError{Stage: dict.StageMetadata, Path: src, Err: err}
	}
	r.log.Info("dictionary imported", "installed_id", filename, "id", rec.ID, "label", rec.Label, "entries", rec.EntryCount)
	return filename, nil
}

// backfill records metadata for an installed file that has none. Failures
// are logged only.
func (r *Registry) backfill(filename, stem string) {
	r.mu.RLock()
	known := r.indexOf(filename) >= 0
	r.mu.RUnlock()
	if known {
		return
	}
	rec, err := r.extractMetadata(filename, stem)
	if err != nil {
		r.log.Warn("could not extract metadata", "installed_id", filename, "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(filename) >= 0 {
		return
	}
	r.records = append(r.records, rec)
	if err := r.saveMetadataLocked(); err != nil {
		r.log.Warn("save metadata", "installed_id", filename, "error", err)
	}
}

// validateSource checks that src exists, is non-empty and readable. A
// directory is accepted when it holds exactly one importable file of the
// wanted format, which is returned instead.
func validateSource(src, format string) (string, error) {
	path, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	if fi.IsDir() {
		path, err = findInDir(path, format)
		if err != nil {
			return "", err
		}
		if fi, err = os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
		}
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", dict.ErrSourceUnavailable, src)
	}
	if fi.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", dict.ErrFormat, src)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	defer f.Close()
	if _, err := f.Read(make([]byte, 1)); err != nil {
		return "", fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	if format == "" && loader.DetectFormat(path) == "" {
		return "", fmt.Errorf("%w: unrecognised file type %s", dict.ErrFormat, filepath.Ext(path))
	}
	return path, nil
}

func findInDir(dir, format string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f := loader.DetectFormat(e.Name())
		// Word lists are too ambiguous to pick from a directory.
		if f == "" || f == "tsv" || f == "json" {
			continue
		}
		if format != "" && !strings.EqualFold(f, format) {
			continue
		}
		found = append(found, filepath.Join(dir, e.Name()))
	}
	sort.Strings(found)
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no dictionary file in %s", dict.ErrFormat, dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %d dictionary files in %s", dict.ErrFormat, len(found), dir)
	}
}

func isNative(path, format string) bool {
	if format != "" {
		return strings.EqualFold(format, loader.FormatNative)
	}
	return container.IsContainer(path)
}

// copyData moves the bytes of a native import.
var copyData = io.Copy

// copyVerified copies src to dst and compares sizes. dst is removed on any
// failure.
func copyVerified(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	if _, err = copyData(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err = out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return verifySize(src, dst)
}

func verifySize(src, dst string) error {
	si, err := os.Stat(src)
	if err != nil {
		return err
	}
	di, err := os.Stat(dst)
	if err != nil {
		return err
	}
	if si.Size() != di.Size() {
		return fmt.Errorf("%w: copied %d of %d bytes", dict.ErrCopyIntegrity, di.Size(), si.Size())
	}
	return nil
}
