package variable

import (
	"testing"

	"forge/internal/document"
)

func mappingOf(t *testing.T, kv map[string]string) *document.Node {
	t.Helper()
	m := document.NewMapping(zp())
	for k, v := range kv {
		m.Set(k, document.NewScalar(zp(), v))
	}
	return m
}

func TestBuildElementEnvironmentComposesLayers(t *testing.T) {
	defaults := mappingOf(t, map[string]string{"prefix": "base"})
	project := mappingOf(t, map[string]string{"prefix": "proj"})
	element := mappingOf(t, map[string]string{"suffix": "elem"})

	env, err := BuildElementEnvironment(defaults, project, element, "my-element", "my-project", 4)
	if err != nil {
		t.Fatalf("BuildElementEnvironment: %v", err)
	}

	prefix, err := env.Get("prefix")
	if err != nil || prefix != "proj" {
		t.Fatalf("expected project to override defaults, got %q, %v", prefix, err)
	}
	suffix, err := env.Get("suffix")
	if err != nil || suffix != "elem" {
		t.Fatalf("got %q, %v", suffix, err)
	}
	name, err := env.Get("element-name")
	if err != nil || name != "my-element" {
		t.Fatalf("got %q, %v", name, err)
	}
	maxJobs, err := env.Get("max-jobs")
	if err != nil || maxJobs != "4" {
		t.Fatalf("expected default max-jobs=4, got %q, %v", maxJobs, err)
	}
}

func TestBuildElementEnvironmentNotparallelForcesMaxJobsOne(t *testing.T) {
	element := mappingOf(t, map[string]string{"notparallel": "True"})

	env, err := BuildElementEnvironment(nil, nil, element, "el", "proj", 8)
	if err != nil {
		t.Fatalf("BuildElementEnvironment: %v", err)
	}
	maxJobs, err := env.Get("max-jobs")
	if err != nil || maxJobs != "1" {
		t.Fatalf("expected notparallel to force max-jobs=1, got %q, %v", maxJobs, err)
	}
}

func TestBuildElementEnvironmentRejectsNonScalarVariable(t *testing.T) {
	element := document.NewMapping(zp())
	element.Set("bad", document.NewMapping(zp()))

	if _, err := BuildElementEnvironment(nil, nil, element, "el", "proj", 1); err == nil {
		t.Fatal("expected error for non-scalar variable value")
	}
}
