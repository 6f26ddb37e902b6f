package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileExt = ".json"

// FilePersister keeps one JSON document per session in a directory.
type FilePersister struct {
	dir string
	mu  sync.Mutex
}

var _ Persister = (*FilePersister)(nil)

func NewFilePersister(dir string) (*FilePersister, error) {
	if dir == "" {
		dir = "sessions"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(p.dir, id+fileExt), nil
}

// Save writes to a temporary file and renames it over the previous record.
func (p *FilePersister) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := p.path(rec.SessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tmp, err := os.CreateTemp(p.dir, rec.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %s: %w", rec.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close session %s: %w", rec.SessionID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (p *FilePersister) Load(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	path, err := p.path(id)
	if err != nil {
		return Record{}, err
	}
	return readRecord(path)
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// List skips files that cannot be decoded.
func (p *FilePersister) List(ctx context.Context, userID string) ([]Info, error) {
	out := []Info{}
	err := p.each(ctx, func(path string, rec Record, _ fs.FileInfo) error {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec.Info())
		}
		return nil
	})
	return out, err
}

func (p *FilePersister) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := p.path(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes records last active before cutoff. Records without
// a last-active time fall back to the file modification time.
func (p *FilePersister) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []string
	err := p.each(ctx, func(path string, rec Record, fi fs.FileInfo) error {
		last := rec.LastActive
		if last.IsZero() {
			last = fi.ModTime()
		}
		if last.Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("delete %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	return removed, nil
}

func (p *FilePersister) each(ctx context.Context, fn func(path string, rec Record, fi fs.FileInfo) error) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		path := filepath.Join(p.dir, e.Name())
		rec, err := readRecord(path)
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if err := fn(path, rec, fi); err != nil {
			return err
		}
	}
	return nil
}
