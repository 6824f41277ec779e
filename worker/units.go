package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pithecene-io/buildout/iox"
)

// Built-in unit type names.
const (
	UnitCopy   = "copy"
	UnitDigest = "digest"
)

// FileParams are the parameters of the built-in units.
type FileParams struct {
	Input  string `msgpack:"input"`
	Output string `msgpack:"output"`
}

// OutputPath implements Params.
func (p FileParams) OutputPath() string { return p.Output }

// NewBuiltinRegistry returns a registry holding the built-in units.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	_ = Register(r, UnitCopy, CopyUnit)
	_ = Register(r, UnitDigest, DigestUnit)
	return r
}

// CopyUnit copies Input to Output. A directory input is copied recursively.
func CopyUnit(ctx context.Context, p FileParams) error {
	info, err := os.Stat(p.Input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(p.Input, p.Output, info.Mode().Perm())
	}

	return filepath.WalkDir(p.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Input, path)
		if err != nil {
			return err
		}
		target := filepath.Join(p.Output, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// DigestUnit writes the hex SHA-256 of Input to Output. A directory input
// is digested over its files in walk order, each prefixed by its relative
// path.
func DigestUnit(ctx context.Context, p FileParams) error {
	h := sha256.New()

	err := filepath.WalkDir(p.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.Input, path)
		if err != nil {
			return err
		}
		if rel != "." {
			_, _ = io.WriteString(h, filepath.ToSlash(rel)+"\x00")
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer iox.DiscardClose(f)
		_, err = io.Copy(h, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.Output), 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s  %s\n", hex.EncodeToString(h.Sum(nil)), filepath.Base(p.Input))
	return os.WriteFile(p.Output, []byte(line), 0o644)
}
