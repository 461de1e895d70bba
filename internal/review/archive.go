package review

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Archive writes the files of a run directory to w as a zip archive. Entry
// names are relative to dir. Hidden files, such as result files still being
// written, are skipped.
func Archive(dir string, w io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive: %s is not a directory", dir)
	}

	zw := zip.NewWriter(w)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel), d)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("archive %s: %w", filepath.Base(dir), err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive %s: %w", filepath.Base(dir), err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
