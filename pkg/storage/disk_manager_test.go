package storage

import (
	"os"
	"testing"
)

func TestDiskManagerMissingFileIsEmptyPage(t *testing.T) {
	dir := t.TempDir()
	dm, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}

	id := PageID{Table: "t", RangeIndex: 0, IsTail: false, PageIndex: 0, Column: 0}
	p, err := dm.ReadPage(id)
	if err != nil {
		t.Fatalf("read missing page: %v", err)
	}
	if p.NumRecords() != 0 {
		t.Fatalf("expected empty page, got %d records", p.NumRecords())
	}
}

func TestDiskManagerWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dm, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}

	id := PageID{Table: "t", RangeIndex: 2, IsTail: true, PageIndex: 3, Column: 1}
	p := NewPage()
	p.Append(111)
	p.Append(222)

	if err := dm.WritePage(id, p); err != nil {
		t.Fatalf("write page: %v", err)
	}

	loaded, err := dm.ReadPage(id)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if loaded.NumRecords() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.NumRecords())
	}
	if loaded.Read(0) != 111 || loaded.Read(1) != 222 {
		t.Fatalf("unexpected values: %d %d", loaded.Read(0), loaded.Read(1))
	}

	path := dm.pagePath(id)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected page file at %s: %v", path, err)
	}
}

func TestDiskManagerFilePerPageLayout(t *testing.T) {
	dir := t.TempDir()
	dm, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}

	id := PageID{Table: "orders", RangeIndex: 0, IsTail: false, PageIndex: 5, Column: 2}
	p := NewPage()
	p.Append(1)
	if err := dm.WritePage(id, p); err != nil {
		t.Fatalf("write page: %v", err)
	}

	want := dir + "/orders/page_range_0/base_5_2.page"
	if got := dm.pagePath(id); got != want {
		t.Fatalf("expected path %s, got %s", want, got)
	}
}
