// Package file packs directories into compressed tar archives before they are
// pushed through the relay, and unpacks them again on the receiving side.
package file

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

const PackTempPrefix = "relaydrop-pack-"

// ArchiveExt is appended to the name of packed directories.
const ArchiveExt = ".tar.gz"

// ----------------------------------------------------- Pack Files ----------------------------------------------------

// Pack tars and gzip-compresses the given paths into a temporary file, returning
// it rewound along with the resulting size. The caller removes the file.
func Pack(paths ...string) (*os.File, int64, error) {
	tempFile, err := os.CreateTemp(os.TempDir(), PackTempPrefix)
	if err != nil {
		return nil, 0, err
	}
	cleanup := func(err error) (*os.File, int64, error) {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, 0, err
	}

	// chained writers -> writing to tw writes to gw -> writes to temporary file
	bw := bufio.NewWriter(tempFile)
	gw := pgzip.NewWriter(bw)
	tw := tar.NewWriter(gw)
	for _, path := range paths {
		if err := addToTarArchive(tw, path); err != nil {
			return cleanup(fmt.Errorf("packing %s: %w", path, err))
		}
	}
	if err := tw.Close(); err != nil {
		return cleanup(err)
	}
	if err := gw.Close(); err != nil {
		return cleanup(err)
	}
	if err := bw.Flush(); err != nil {
		return cleanup(err)
	}

	info, err := tempFile.Stat()
	if err != nil {
		return cleanup(err)
	}
	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return cleanup(err)
	}
	return tempFile, info.Size(), nil
}

// ---------------------------------------------------- Unpack Files ---------------------------------------------------

var ErrUnpackNoHeader = errors.New("no header in tar archive")
var ErrUnpackFileExists = errors.New("file exists")
var ErrUnsafePath = errors.New("archive entry escapes the target directory")
var ErrUninitialized = errors.New("unpacker is uninitialized")

// Unpacker defines an encapsulated unit for unpacking a compressed
// tar archive into a directory.
type Unpacker struct {
	overwrite bool
	dir       string

	gr *pgzip.Reader
	tr *tar.Reader
	r  io.ReadCloser
}

func NewUnpacker(dir string, overwrite bool, r io.ReadCloser) (*Unpacker, error) {
	gr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Unpacker{
		overwrite: overwrite,
		dir:       dir,
		gr:        gr,
		tr:        tar.NewReader(gr),
		r:         r,
	}, nil
}

// Close closes all underlying readers of the unpacker.
func (u *Unpacker) Close() error {
	if u.gr != nil {
		if err := u.gr.Close(); err != nil {
			return err
		}
	}
	if u.r != nil {
		return u.r.Close()
	}
	return nil
}

// Unpack reads the next archive entry and returns a Committer writing it to
// disk. Existing regular files yield ErrUnpackFileExists along with the
// committer unless the unpacker overwrites. Returns io.EOF once the archive
// has been fully consumed.
func (u *Unpacker) Unpack() (Committer, error) {
	if u.tr == nil {
		return nil, ErrUninitialized
	}
	header, err := u.tr.Next()
	switch {
	case err != nil:
		return nil, err
	case header == nil:
		return nil, ErrUnpackNoHeader
	}
	path, err := u.target(header.Name)
	if err != nil {
		return nil, err
	}
	c := &committer{
		path:   path,
		name:   header.Name,
		tr:     u.tr,
		header: header,
	}
	if !u.overwrite && header.Typeflag == tar.TypeReg && fileExists(path) {
		return c, ErrUnpackFileExists
	}
	return c, nil
}

func (u *Unpacker) target(name string) (string, error) {
	path := filepath.Join(u.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(u.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return path, nil
}

// Committer defines a unit that can commit a file to disk
type Committer interface {
	FileName() string
	Commit() (int64, error)
}

type committer struct {
	path   string
	name   string
	tr     *tar.Reader
	header *tar.Header
}

func (c *committer) FileName() string {
	return c.name
}

func (c *committer) Commit() (int64, error) {
	switch c.header.Typeflag {
	case tar.TypeDir:
		if _, err := os.Stat(c.path); err != nil {
			if err := os.MkdirAll(c.path, 0755); err != nil {
				return 0, err
			}
		}
		return 0, nil
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
			return 0, err
		}
		f, err := os.Create(c.path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return io.Copy(f, c.tr)
	default:
		return 0, fmt.Errorf("unsupported entry type %q for %s", c.header.Typeflag, c.name)
	}
}

// Extract unpacks the archive at path into dir. It returns the names of the
// entries written and the names skipped because they already existed.
func Extract(path, dir string, overwrite bool) (written, skipped []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	u, err := NewUnpacker(dir, overwrite, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	defer u.Close()

	for {
		c, err := u.Unpack()
		switch {
		case errors.Is(err, io.EOF):
			return written, skipped, nil
		case errors.Is(err, ErrUnpackFileExists):
			skipped = append(skipped, c.FileName())
			continue
		case err != nil:
			return written, skipped, err
		}
		if _, err := c.Commit(); err != nil {
			return written, skipped, fmt.Errorf("extracting %s: %w", c.FileName(), err)
		}
		written = append(written, c.FileName())
	}
}

// IsArchive reports whether name looks like an archive produced by Pack.
func IsArchive(name string) bool {
	return strings.HasSuffix(name, ArchiveExt)
}

// ----------------------------------------------------- Utilities -----------------------------------------------------

// FileSize traverses a file or directory recursively for total size in bytes.
func FileSize(filePath string) (int64, error) {
	var size int64
	err := filepath.Walk(filePath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// RemoveTemporaryFiles optimistically removes files in the temp directory with
// the specified prefix.
func RemoveTemporaryFiles(prefix string) {
	tempFiles, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, tempFile := range tempFiles {
		if strings.HasPrefix(tempFile.Name(), prefix) {
			os.Remove(filepath.Join(os.TempDir(), tempFile.Name()))
		}
	}
}

// ------------------------------------------------------- Helper ------------------------------------------------------

// addToTarArchive adds a file or folder to a tar archive. Symlinks are
// replaced with the files they point to.
func addToTarArchive(tw *tar.Writer, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	absoluteBase := filepath.Dir(absPath)

	return filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink == os.ModeSymlink {
			link, err := filepath.EvalSymlinks(path)
			if err != nil {
				return err
			}
			if fi, err = os.Stat(link); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(fi, path)
		if err != nil {
			return err
		}
		// absolute paths handle relative and absolute input paths identically
		targetPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(strings.TrimPrefix(targetPath, absoluteBase))
		header.Name = strings.TrimPrefix(header.Name, "/")

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		data, err := os.Open(path)
		if err != nil {
			return err
		}
		defer data.Close()
		_, err = io.Copy(tw, data)
		return err
	})
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
