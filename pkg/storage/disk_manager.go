package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DiskManager owns the file-per-page on-disk layout:
//
//	<db_path>/<table_name>/page_range_<R>/{base|tail}_<P>_<C>.page
//
// Directories are created lazily and memoized; a missing page file is not
// an error, it simply means the page has never been written and loads as
// empty (the BufferPool turns that into a fresh *Page).
type DiskManager struct {
	mu       sync.Mutex
	dbPath   string
	madeDirs map[string]bool
}

// NewDiskManager roots a disk manager at dbPath, creating it if absent.
func NewDiskManager(dbPath string) (*DiskManager, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create db path: %w", err)
	}
	return &DiskManager{
		dbPath:   dbPath,
		madeDirs: make(map[string]bool),
	}, nil
}

func (dm *DiskManager) pagePath(id PageID) string {
	area := "base"
	if id.IsTail {
		area = "tail"
	}
	dir := filepath.Join(dm.dbPath, id.Table, fmt.Sprintf("page_range_%d", id.RangeIndex))
	file := fmt.Sprintf("%s_%d_%d.page", area, id.PageIndex, id.Column)
	return filepath.Join(dir, file)
}

func (dm *DiskManager) ensureDir(id PageID) error {
	dir := filepath.Join(dm.dbPath, id.Table, fmt.Sprintf("page_range_%d", id.RangeIndex))

	dm.mu.Lock()
	made := dm.madeDirs[dir]
	dm.mu.Unlock()
	if made {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create page range dir %s: %w", dir, err)
	}

	dm.mu.Lock()
	dm.madeDirs[dir] = true
	dm.mu.Unlock()
	return nil
}

// ReadPage loads a page from disk. A missing file yields an empty page,
// not an error; any other I/O failure is surfaced.
func (dm *DiskManager) ReadPage(id PageID) (*Page, error) {
	data, err := os.ReadFile(dm.pagePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return NewPage(), nil
		}
		return nil, fmt.Errorf("storage: read page %s: %w", id, err)
	}
	return Deserialize(data)
}

// WritePage flushes a page's bytes to its file, creating parent
// directories on first use.
func (dm *DiskManager) WritePage(id PageID, p *Page) error {
	if err := dm.ensureDir(id); err != nil {
		return err
	}
	path := dm.pagePath(id)
	if err := os.WriteFile(path, p.Serialize(), 0o644); err != nil {
		return fmt.Errorf("storage: write page %s: %w", id, err)
	}
	return nil
}
