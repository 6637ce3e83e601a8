package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveFormat selects the optional single-file artifact.
type ArchiveFormat string

const (
	ArchiveNone   ArchiveFormat = ""
	ArchiveZip    ArchiveFormat = "zip"
	ArchiveTarZst ArchiveFormat = "tar.zst"
)

// ParseArchiveFormat validates a configuration value.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	switch f := ArchiveFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ArchiveNone, ArchiveZip, ArchiveTarZst:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", s)
	}
}

// Pinned archive metadata. Zip cannot represent times before 1980.
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// archiveMembers lists the files under dir relative to it, sorted bytewise,
// with every parent directory inserted ahead of its first child.
func archiveMembers(dir string, files []string) []member {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	var out []member
	seenDirs := map[string]bool{}
	for _, f := range sorted {
		var parents []string
		for d := path.Dir(f); d != "." && d != "/" && !seenDirs[d]; d = path.Dir(d) {
			parents = append(parents, d)
		}
		for i := len(parents) - 1; i >= 0; i-- {
			seenDirs[parents[i]] = true
			out = append(out, member{name: parents[i] + "/", dir: true})
		}
		out = append(out, member{name: f, src: filepath.Join(dir, filepath.FromSlash(f))})
	}
	return out
}

type member struct {
	name string
	src  string
	dir  bool
}

func writeZip(w io.Writer, members []member) error {
	zw := zip.NewWriter(w)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.name, Method: zip.Deflate, Modified: archiveEpoch}
		if m.dir {
			hdr.Method = zip.Store
			hdr.SetMode(os.ModeDir | dirMode)
			if _, err := zw.CreateHeader(hdr); err != nil {
				return err
			}
			continue
		}
		hdr.SetMode(fileMode)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if err := copyFrom(fw, m.src); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTarZst(w io.Writer, members []member) error {
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.name,
			ModTime: archiveEpoch,
			Uid:     0,
			Gid:     0,
			Format:  tar.FormatPAX,
		}
		if m.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = dirMode
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			continue
		}
		info, err := os.Stat(m.src)
		if err != nil {
			return err
		}
		hdr.Typeflag = tar.TypeReg
		hdr.Mode = fileMode
		hdr.Size = info.Size()
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if err := copyFrom(tw, m.src); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func copyFrom(w io.Writer, src string) error {
	f, err := os.Open(src) // #nosec G304 -- staged bundle file
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}
