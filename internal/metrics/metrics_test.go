package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	Changed.WithLabelValues("add").Add(3)
	Redirects.Inc()

	path := filepath.Join(t.TempDir(), "ippool.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	for _, want := range []string{
		`ippool_leases_changed_total{action="add"}`,
		"ippool_redirects_total",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %s in textfile output", want)
		}
	}
}
