package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同一レジストリへの二重登録は panic するべき")
		}
	}()
	NewCollector(reg)
}

func TestRecordFetch_CountsBySourceAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetch("solvedac_problem", ResultSuccess)
	c.RecordFetch("solvedac_problem", ResultSuccess)
	c.RecordFetch("solvedac_problem", ResultRateLimited)

	m := findMetric(t, reg, "algohaja_sync_fetch_total", map[string]string{"source": "solvedac_problem", "result": ResultSuccess})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("success = %v, want 2", v)
	}
	m = findMetric(t, reg, "algohaja_sync_fetch_total", map[string]string{"source": "solvedac_problem", "result": ResultRateLimited})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("rate_limited = %v, want 1", v)
	}
}

func TestRecordFetchLatency_ObservesSeconds(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency("boj", 1500*time.Millisecond)

	m := findMetric(t, reg, "algohaja_sync_fetch_latency_seconds", map[string]string{"source": "boj"})
	if got := m.GetHistogram().GetSampleSum(); got != 1.5 {
		t.Errorf("sample sum = %v, want 1.5", got)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %v, want 1", got)
	}
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDrained("judge_user", 5)
	c.RecordDrained("judge_user", 2)
	c.SetQueueDepth("judge_user", 10)
	c.SetQueueDepth("judge_user", 4)
	c.RecordCycleSkipped("judge_user")
	c.RecordEnqueued("problem", OriginSeeder, 3)
	c.RecordEnqueued("problem", OriginRequest, 1)
	c.RecordMergeFailure("problem")

	if v := findMetric(t, reg, "algohaja_sync_drained_total", map[string]string{"queue": "judge_user"}).GetCounter().GetValue(); v != 7 {
		t.Errorf("drained = %v, want 7", v)
	}
	if v := findMetric(t, reg, "algohaja_sync_queue_depth", map[string]string{"queue": "judge_user"}).GetGauge().GetValue(); v != 4 {
		t.Errorf("depth = %v, want 4", v)
	}
	if v := findMetric(t, reg, "algohaja_sync_cycle_skipped_total", map[string]string{"queue": "judge_user"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("skipped = %v, want 1", v)
	}
	if v := findMetric(t, reg, "algohaja_sync_enqueued_total", map[string]string{"queue": "problem", "origin": OriginSeeder}).GetCounter().GetValue(); v != 3 {
		t.Errorf("enqueued(seeder) = %v, want 3", v)
	}
	if v := findMetric(t, reg, "algohaja_sync_merge_fail_total", map[string]string{"kind": "problem"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("merge_fail = %v, want 1", v)
	}
}
