package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lstore-db/lstore/pkg/storage"
)

func TestCollectorRegistersAndReportsCounters(t *testing.T) {
	dm, err := storage.NewDiskManager(t.TempDir())
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := storage.NewBufferPool(10, dm)
	counters := NewCounters()
	counters.InsertsExecuted.Add(3)
	counters.InsertsFailed.Add(1)

	collector := NewCollector("lstore_test", pool, counters)
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, fam := range families {
		if fam.GetName() == "lstore_test_inserts_total" {
			found = true
			if got := fam.Metric[0].GetCounter().GetValue(); got != 3 {
				t.Fatalf("expected inserts_total=3, got %v", got)
			}
		}
	}
	if !found {
		t.Fatal("expected lstore_test_inserts_total to be exported")
	}
}
