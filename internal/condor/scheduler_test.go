package condor

import "testing"

func TestParseCluster(t *testing.T) {
	id, err := parseCluster("Submitting job(s).\n1 job(s) submitted to cluster 1234.\n")
	if err != nil {
		t.Fatalf("parseCluster failed: %v", err)
	}
	if id != 1234 {
		t.Errorf("expected 1234, got %d", id)
	}
}

func TestParseCluster_NoMatch(t *testing.T) {
	if _, err := parseCluster("WARNING: something else entirely"); err == nil {
		t.Fatal("expected error for output without cluster id")
	}
}

func TestParseBatches(t *testing.T) {
	out := `[
		{"ClusterId": 10, "JobBatchName": "ci-pool", "JobStatus": 2},
		{"ClusterId": 10, "JobBatchName": "ci-pool", "JobStatus": 1},
		{"ClusterId": 11, "JobBatchName": "ci-pool", "JobStatus": 2},
		{"ClusterId": 12, "JobBatchName": "nightly", "JobStatus": 1}
	]`

	batches, err := parseBatches(out)
	if err != nil {
		t.Fatalf("parseBatches failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Name != "ci-pool" || batches[0].Jobs != 3 {
		t.Errorf("unexpected first batch: %+v", batches[0])
	}
	if len(batches[0].Clusters) != 2 {
		t.Errorf("expected 2 clusters, got %v", batches[0].Clusters)
	}
	if batches[1].Name != "nightly" {
		t.Errorf("unexpected second batch: %+v", batches[1])
	}
}

func TestParseBatches_EmptyQueue(t *testing.T) {
	batches, err := parseBatches("")
	if err != nil {
		t.Fatalf("parseBatches failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no batches, got %v", batches)
	}
}
