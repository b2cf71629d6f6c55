package checkpoint

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
)

// ArchiveStorage snapshots tracked files into tar.gz archives under the
// user cache directory. Each working directory gets its own subdirectory
// keyed by a hash of its absolute path, so two projects never collide.
type ArchiveStorage struct {
	workDir string
	baseDir string
	ix      *index
}

// NewArchiveStorage creates an archive-backed store for workDir. The cache
// location follows os.UserCacheDir.
func NewArchiveStorage(workDir string) (*ArchiveStorage, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	sum := blake3.Sum256([]byte(abs))
	base := filepath.Join(cache, "aide", "checkpoints", fmt.Sprintf("%x", sum[:8]))
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &ArchiveStorage{
		workDir: abs,
		baseDir: base,
		ix:      &index{path: filepath.Join(base, "index.json")},
	}, nil
}

func (a *ArchiveStorage) archivePath(cp *Checkpoint) string {
	return filepath.Join(a.baseDir, cp.ID+".tar.gz")
}

func (a *ArchiveStorage) Save(ctx context.Context, cp *Checkpoint, files []string) error {
	cp.Ref = cp.ID + ".tar.gz"
	cp.Files = files

	f, err := os.Create(a.archivePath(cp))
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.addFile(tw, rel); err != nil {
			// Tracked but since deleted is normal; record the gap by
			// omission and keep going.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return a.ix.add(cp)
}

func (a *ArchiveStorage) addFile(tw *tar.Writer, rel string) error {
	full := filepath.Join(a.workDir, rel)
	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	src, err := os.Open(full)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}

func (a *ArchiveStorage) Restore(ctx context.Context, cp *Checkpoint) error {
	f, err := os.Open(a.archivePath(cp))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("archive %s: %w", cp.Ref, ErrNotFound)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("archive entry escapes work dir: %s", hdr.Name)
		}
		dst := filepath.Join(a.workDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := writeEntry(dst, tr, hdr.FileInfo().Mode()); err != nil {
			return err
		}
	}
}

func writeEntry(dst string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}

func (a *ArchiveStorage) List(ctx context.Context) ([]*Checkpoint, error) {
	return a.ix.load()
}

func (a *ArchiveStorage) Delete(ctx context.Context, cp *Checkpoint) error {
	if err := os.Remove(a.archivePath(cp)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return a.ix.remove(cp.ID)
}
