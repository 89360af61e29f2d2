// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// WriteFileTarGz packages a single file into a tar.gz archive at dst. The
// entry is named after the file's base name so extraction restores it next
// to the archive.
func WriteFileTarGz(src string, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive file %s: %w", dst, err)
	}

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	writeErr := func() error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.Base(src)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}()

	if writeErr != nil {
		_ = tw.Close()
		_ = gw.Close()
		_ = out.Close()
		return fmt.Errorf("failed to archive %s: %w", src, writeErr)
	}
	if err := tw.Close(); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return fmt.Errorf("failed to finalize tar stream for %s: %w", dst, err)
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finalize gzip stream for %s: %w", dst, err)
	}
	return out.Close()
}

// ExtractTarGz extracts a tar.gz archive into dst, guarding against entries
// that escape the destination directory.
func ExtractTarGz(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive file %s: %w", src, err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader for %s: %w", src, err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream from %s: %w", src, err)
		}

		target := filepath.Join(dst, header.Name)

		// Validate path to prevent Zip Slip
		destAbs, err := filepath.Abs(dst)
		if err != nil {
			return err
		}
		targetAbs, err := filepath.Abs(target)
		if err != nil {
			return err
		}
		if targetAbs != destAbs && !strings.HasPrefix(targetAbs, destAbs+string(os.PathSeparator)) {
			return fmt.Errorf("invalid file path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
