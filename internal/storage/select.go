package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Picker acquires a writable destination for a file name.
type Picker interface {
	Pick(ctx context.Context, suggestedName string) (Destination, error)
}

// Selector chooses the backend for each transfer.
type Selector struct {
	capability Capability
	picker     Picker
	save       SaveFunc
	logger     *zap.Logger
}

func NewSelector(capability Capability, picker Picker, save SaveFunc, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		capability: capability,
		picker:     picker,
		save:       save,
		logger:     logger,
	}
}

// Select returns a streaming backend when the capability allows it and a
// destination can be acquired, and a memory backend otherwise.
func (s *Selector) Select(ctx context.Context, name string) Backend {
	if !s.capability.Streaming() || s.picker == nil {
		return NewMemoryBuffer(name, s.save)
	}
	dst, err := s.picker.Pick(ctx, name)
	if err != nil {
		s.logger.Warn("unable to acquire streaming destination, buffering in memory",
			zap.String("file", name), zap.Error(err))
		return NewMemoryBuffer(name, s.save)
	}
	return NewStreamingWriter(dst)
}

// DirPicker acquires destinations inside Dir.
type DirPicker struct {
	Dir       string
	Overwrite bool
}

func (p DirPicker) Pick(ctx context.Context, suggestedName string) (Destination, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := SafeName(suggestedName)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !p.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(filepath.Join(p.Dir, name), flags, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SaveToDir returns a save trigger writing buffered files into dir. With
// overwrite an existing file of the same name is replaced, otherwise a free
// name is picked.
func SaveToDir(dir string, overwrite bool) SaveFunc {
	return func(ctx context.Context, name string, data []byte) (string, error) {
		name, err := SafeName(name)
		if err != nil {
			return "", err
		}
		if overwrite {
			path := filepath.Join(dir, name)
			return path, os.WriteFile(path, data, 0o644)
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			candidate := name
			if i > 0 {
				candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
			}
			path := filepath.Join(dir, candidate)
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if errors.Is(err, os.ErrExist) {
				continue
			}
			if err != nil {
				return "", err
			}
			if _, err := f.Write(data); err != nil {
				f.Close()
				return "", err
			}
			return path, f.Close()
		}
	}
}

// SafeName strips any directory components from a sender provided file name.
func SafeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}
