package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	flowrun "github.com/flowrun/flowrun"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/parser"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

// manifest declares module signatures so the CLI can type-check
// pipelines without the modules' Go implementations. Types use the DSL's
// own type-expression syntax.
//
//	modules:
//	  - name: Uppercase
//	    major: 1
//	    consumes:
//	      - {name: text, type: String}
//	    produces:
//	      - {name: result, type: String}
//	    module_timeout: 30s
type manifest struct {
	Modules []manifestModule `yaml:"modules"`
}

type manifestModule struct {
	Name          string          `yaml:"name"`
	Major         int             `yaml:"major"`
	Minor         int             `yaml:"minor"`
	Consumes      []manifestParam `yaml:"consumes"`
	Produces      []manifestParam `yaml:"produces"`
	InputsTimeout string          `yaml:"inputs_timeout"`
	ModuleTimeout string          `yaml:"module_timeout"`
}

type manifestParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func registerManifest(rt *flowrun.Runtime, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading module manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parsing module manifest: %w", err)
	}

	for _, mod := range m.Modules {
		consumes, err := manifestParams(mod.Consumes)
		if err != nil {
			return fmt.Errorf("module %s: %w", mod.Name, err)
		}
		produces, err := manifestParams(mod.Produces)
		if err != nil {
			return fmt.Errorf("module %s: %w", mod.Name, err)
		}
		inputsTimeout, err := manifestDuration(mod.InputsTimeout)
		if err != nil {
			return fmt.Errorf("module %s: inputs_timeout: %w", mod.Name, err)
		}
		moduleTimeout, err := manifestDuration(mod.ModuleTimeout)
		if err != nil {
			return fmt.Errorf("module %s: module_timeout: %w", mod.Name, err)
		}
		name := mod.Name
		desc := &modreg.Descriptor{
			ID:        modreg.Identity{Name: name, Major: mod.Major, Minor: mod.Minor},
			Signature: modreg.Signature{Consumes: consumes, Produces: produces},
			Config: modreg.Config{
				InputsTimeout: inputsTimeout,
				ModuleTimeout: moduleTimeout,
			},
			Kind: modreg.Pure,
			// Manifest-declared modules carry a signature only; running a
			// pipeline requires the embedding to register the real
			// implementation.
			Pure: func(*value.VRecord) (*value.VRecord, error) {
				return nil, fmt.Errorf("module %q is declared in a manifest without an implementation", name)
			},
		}
		if err := rt.RegisterModule(desc); err != nil {
			return err
		}
	}
	return nil
}

func manifestDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func manifestParams(params []manifestParam) ([]modreg.Param, error) {
	out := make([]modreg.Param, len(params))
	for i, p := range params {
		te, err := parser.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: invalid type %q: %w", p.Name, p.Type, err)
		}
		t := typecheck.ResolveTypeExpr(te, nil)
		if value.IsNothing(t) && p.Type != "Nothing" {
			return nil, fmt.Errorf("parameter %q: unresolved type %q", p.Name, p.Type)
		}
		out[i] = modreg.Param{Name: p.Name, Type: t}
	}
	return out, nil
}
