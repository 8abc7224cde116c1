package main

import (
	"fmt"
	"os"
	"path/filepath"

	"forge/internal/document"
	"forge/internal/element"
	"forge/internal/variable"
)

// loadGraph reads a single project YAML file describing every element in
// one flat list and builds an element.Graph from it. It deliberately does
// not resolve junctions or walk a multi-file project tree — that
// discovery mechanism sits outside this package's scope; loadGraph only
// exercises the document model's parse-and-compose contract over one
// already-assembled stream.
//
// Project-wide variable defaults are not part of this flat format (there
// is no separate project document to hold them), so each element composes
// only its own "variables" mapping on top of the built-in rules; the
// composed environment is then used to expand %{...} templates in
// config, environment, sandbox, and public-data before the element is
// stored, so dependent components never see a raw, unexpanded template.
func loadGraph(path string) (*element.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file %s: %w", path, err)
	}

	reg := document.NewRegistry()
	root, err := document.ParseFile(reg, path, data)
	if err != nil {
		return nil, err
	}

	elementsNode, err := root.GetSequence("elements", true)
	if err != nil {
		return nil, err
	}

	projectName := filepath.Base(filepath.Dir(path))
	defaultMaxJobs := int(cfg.Pools.Process)

	g := element.NewGraph()
	for _, raw := range elementsNode.Items() {
		el, err := elementFromNode(raw, projectName, defaultMaxJobs)
		if err != nil {
			return nil, err
		}
		g.Add(el)
	}
	if err := g.CheckCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func elementFromNode(n *document.Node, projectName string, defaultMaxJobs int) (*element.Element, error) {
	id, err := n.GetStr("id", "")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("project file: element missing required \"id\"")
	}
	kind, err := n.GetStr("kind", "")
	if err != nil {
		return nil, err
	}

	config, err := n.GetMapping("config", false)
	if err != nil {
		return nil, err
	}
	variables, err := n.GetMapping("variables", false)
	if err != nil {
		return nil, err
	}
	environment, err := n.GetMapping("environment", false)
	if err != nil {
		return nil, err
	}
	publicData, err := n.GetMapping("public-data", false)
	if err != nil {
		return nil, err
	}
	sandbox, err := n.GetMapping("sandbox", false)
	if err != nil {
		return nil, err
	}

	sources, err := sourceRefsFromNode(n)
	if err != nil {
		return nil, err
	}
	buildDeps, err := dependenciesFromNode(n, "build-depends")
	if err != nil {
		return nil, err
	}
	runtimeDeps, err := dependenciesFromNode(n, "runtime-depends")
	if err != nil {
		return nil, err
	}

	env, err := variable.BuildElementEnvironment(nil, nil, variables, id, projectName, defaultMaxJobs)
	if err != nil {
		return nil, err
	}
	if config, err = expandOrNil(env, config); err != nil {
		return nil, err
	}
	if environment, err = expandOrNil(env, environment); err != nil {
		return nil, err
	}
	if sandbox, err = expandOrNil(env, sandbox); err != nil {
		return nil, err
	}
	if publicData, err = expandOrNil(env, publicData); err != nil {
		return nil, err
	}
	for i, ref := range sources {
		expanded, err := expandOrNil(env, ref.Config)
		if err != nil {
			return nil, err
		}
		sources[i].Config = expanded
	}

	return &element.Element{
		ID:          id,
		Kind:        kind,
		Prov:        n.Prov,
		Config:      config,
		Sources:     sources,
		BuildDeps:   buildDeps,
		RuntimeDeps: runtimeDeps,
		Variables:   variables,
		Environment: environment,
		PublicData:  publicData,
		Sandbox:     sandbox,
	}, nil
}

// expandOrNil runs env.Expand over n, or returns nil unchanged — the
// optional config/environment/sandbox/public-data mappings are not
// present on every element.
func expandOrNil(env *variable.Environment, n *document.Node) (*document.Node, error) {
	if n == nil {
		return nil, nil
	}
	return env.Expand(n)
}

func sourceRefsFromNode(n *document.Node) ([]element.SourceRef, error) {
	seq, err := n.GetSequence("sources", false)
	if err != nil || seq == nil {
		return nil, err
	}
	out := make([]element.SourceRef, 0, seq.Len())
	for _, raw := range seq.Items() {
		kind, err := raw.GetStr("kind", "")
		if err != nil {
			return nil, err
		}
		cfg, err := raw.GetMapping("config", false)
		if err != nil {
			return nil, err
		}
		out = append(out, element.SourceRef{Kind: kind, Config: cfg, Prov: raw.Prov})
	}
	return out, nil
}

func dependenciesFromNode(n *document.Node, key string) ([]element.Dependency, error) {
	seq, err := n.GetSequence(key, false)
	if err != nil || seq == nil {
		return nil, err
	}
	out := make([]element.Dependency, 0, seq.Len())
	for _, raw := range seq.Items() {
		out = append(out, element.Dependency{ElementID: raw.ScalarString(), Prov: raw.Prov})
	}
	return out, nil
}
