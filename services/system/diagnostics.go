package system

import (
	"archive/tar"
	"context"
	"os"
	"sort"

	"github.com/klauspost/compress/gzip"
)

// Diagnostics packs collected diagnostic files into an archive at path
type Diagnostics interface {
	Pack(ctx context.Context, path string, files map[string][]byte) error
}

// TarGzPacker writes a gzip compressed tar archive
type TarGzPacker struct{}

func (TarGzPacker) Pack(ctx context.Context, path string, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	return writeFile(path, func(f *os.File) error {
		gz := gzip.NewWriter(f)
		tw := tar.NewWriter(gz)
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			body := files[name]
			hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(body); err != nil {
				return err
			}
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return gz.Close()
	})
}
