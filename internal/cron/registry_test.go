package cron

import (
	"context"
	"strings"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	a, b := &stubJob{name: "a"}, &stubJob{name: "b"}
	registry, err := NewRegistry(a, b)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != a || jobs[1] != b {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	registry := &Registry{}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil job error")
	}
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatalf("expected blank name error")
	}
	if err := registry.Register(&stubJob{name: "ok"}); err != nil {
		t.Fatalf("zero registry should accept jobs: %v", err)
	}
}

func TestRegistrySelect(t *testing.T) {
	registry, _ := NewRegistry(&stubJob{name: "retention"}, &stubJob{name: "stale"}, &stubJob{name: "audit"})

	picked, err := registry.Select("audit", "retention")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(picked) != 2 || picked[0].Name() != "retention" || picked[1].Name() != "audit" {
		t.Fatalf("selection should follow registration order, got %v", picked)
	}

	all, _ := registry.Select()
	if len(all) != 3 {
		t.Fatalf("empty selection should return every job, got %d", len(all))
	}

	_, err = registry.Select("nope")
	if err == nil || !strings.Contains(err.Error(), "audit, retention, stale") {
		t.Fatalf("unknown job error should list known jobs, got %v", err)
	}
}
