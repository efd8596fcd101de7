package snapshot

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/replik-io/replik/pkg/pool"
	"github.com/replik-io/replik/pkg/scan"
	"github.com/replik-io/replik/pkg/util"
)

// archiveBaseName is the file name of the archive inside the staging
// directory. The extension follows the configured format.
const archiveBaseName = "snapshot"

// tarStore stages the replica as one compressed tar archive inside the
// staging directory. Entry names are the normalized relative path keys, so a
// restore addresses the replica exactly like the plain tree store does.
type tarStore struct {
	format  Format
	bufPool *pool.BufferPool
}

func (s *tarStore) archivePath(staging string) string {
	return filepath.Join(staging, archiveBaseName+"."+s.format.String())
}

func (s *tarStore) write(staging, replicaRoot string, entries map[string]scan.Entry) (files int, retErr error) {
	f, err := os.OpenFile(s.archivePath(staging), os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot archive: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close snapshot archive: %w", err)
		}
	}()

	bufWriter := bufio.NewWriter(f)

	compWriter, err := s.newCompressWriter(bufWriter)
	if err != nil {
		return 0, err
	}

	tarWriter := tar.NewWriter(compWriter)

	// Close order matters: tar trailer, then compressor flush, then the
	// buffered writer.
	defer func() {
		if err := tarWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressor close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	bufPtr := s.bufPool.Get()
	defer s.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	// Stable archive ordering keeps snapshots byte-comparable across runs of
	// an unchanged replica.
	relPaths := make([]string, 0, len(entries))
	for relPath := range entries {
		relPaths = append(relPaths, relPath)
	}
	sort.Strings(relPaths)

	for _, relPath := range relPaths {
		entry := entries[relPath]
		if err := s.addFile(tarWriter, entry, buf); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func (s *tarStore) addFile(tarWriter *tar.Writer, entry scan.Entry, buf []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entry.RelPath,
		Size:     entry.Size,
		Mode:     int64(entry.Mode.Perm()),
		ModTime:  entry.ModTime,
		Format:   tar.FormatPAX,
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write archive header for %s: %w", entry.RelPath, err)
	}

	in, err := os.Open(entry.AbsPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for staging: %w", entry.AbsPath, err)
	}
	defer in.Close()

	// The header committed to entry.Size; CopyN keeps a file that grew
	// mid-snapshot from corrupting the archive.
	if _, err := io.CopyBuffer(tarWriter, io.LimitReader(in, entry.Size), buf); err != nil {
		return fmt.Errorf("failed to stage content of %s: %w", entry.AbsPath, err)
	}
	return nil
}

func (s *tarStore) restore(staging, replicaRoot string) (retErr error) {
	f, err := os.Open(s.archivePath(staging))
	if err != nil {
		return fmt.Errorf("failed to open snapshot archive: %w", err)
	}
	defer f.Close()

	compReader, closeReader, err := s.newCompressReader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	defer closeReader()

	tarReader := tar.NewReader(compReader)

	bufPtr := s.bufPool.Get()
	defer s.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read snapshot archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		// Entry names were written by this process from scan keys, but an
		// archive is still external input once it is on disk.
		if !filepath.IsLocal(filepath.FromSlash(header.Name)) {
			return fmt.Errorf("snapshot archive contains non-local path %q", header.Name)
		}

		if err := s.restoreFile(tarReader, header, replicaRoot, buf); err != nil {
			return err
		}
	}
}

func (s *tarStore) restoreFile(tarReader *tar.Reader, header *tar.Header, replicaRoot string, buf []byte) error {
	absReplicaPath := util.DenormalizedAbsPath(replicaRoot, header.Name)
	if err := os.MkdirAll(filepath.Dir(absReplicaPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to recreate replica directory for %s: %w", header.Name, err)
	}

	perm := util.WithUserWritePermission(os.FileMode(header.Mode).Perm())
	out, err := os.OpenFile(absReplicaPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s for restore: %w", absReplicaPath, err)
	}

	if err := out.Chmod(perm); err != nil {
		out.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", absReplicaPath, err)
	}

	if _, err := io.CopyBuffer(out, tarReader, buf); err != nil {
		out.Close()
		return fmt.Errorf("failed to restore content of %s: %w", header.Name, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", absReplicaPath, err)
	}

	if err := os.Chtimes(absReplicaPath, header.ModTime, header.ModTime); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", absReplicaPath, err)
	}
	return nil
}

func (s *tarStore) newCompressWriter(w io.Writer) (io.WriteCloser, error) {
	switch s.format {
	case FormatTarGz:
		return pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
	case FormatTarZst:
		zstdWriter, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", s.format)
	}
}

func (s *tarStore) newCompressReader(r io.Reader) (io.Reader, func(), error) {
	switch s.format {
	case FormatTarGz:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case FormatTarZst:
		zstdReader, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zstdReader.IOReadCloser(), zstdReader.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", s.format)
	}
}
