package pack

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/tripnara/readiness/pkg/condition"
)

// SupportedSchema is the range of pack document versions this build reads.
const SupportedSchema = ">= 1.0.0, < 2.0.0"

// ErrInvalidPack marks a pack document rejected at load.
var ErrInvalidPack = errors.New("invalid capability pack")

//go:embed builtin/*.yaml
var builtinFS embed.FS

const documentSchemaURL = "https://schemas.tripnara.dev/readiness/capability-pack.schema.json"

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "type", "display_name", "rules"],
  "properties": {
    "schema_version": {"type": "string"},
    "type": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
    "display_name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["authority", "title"],
        "properties": {
          "authority": {"type": "string"},
          "title": {"type": "string"},
          "url": {"type": "string"}
        }
      }
    },
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "level", "category", "message", "trigger"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "level": {"enum": ["blocker", "must", "should", "optional", "warning", "suggestion"]},
          "category": {"enum": ["evidence", "schedule", "transport", "safety", "buffer"]},
          "severity": {"enum": ["low", "medium", "high"]},
          "message": {"type": "string", "minLength": 1},
          "action_required": {"type": "string"},
          "affected_days": {"type": "array", "items": {"type": "integer", "minimum": 1}},
          "repair_hints": {"type": "array", "items": {"type": "string"}},
          "trigger": {"type": "object"}
        }
      }
    },
    "hazards": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "severity", "summary"],
        "properties": {
          "type": {"type": "string"},
          "severity": {"enum": ["low", "medium", "high"]},
          "summary": {"type": "string"},
          "mitigations": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
	supported      *semver.Constraints
)

func init() {
	c, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		panic(err)
	}
	supported = c
}

func documentValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
			schemaErr = fmt.Errorf("pack schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(documentSchemaURL)
	})
	return compiledSchema, schemaErr
}

// Parse decodes, validates and compiles one pack document.
// Every trigger is compiled against ev so malformed rules fail here.
func Parse(data []byte, name string, ev *condition.Evaluator) (CapabilityPack, error) {
	if err := validateDocument(data); err != nil {
		return CapabilityPack{}, fmt.Errorf("%w %s: %v", ErrInvalidPack, name, err)
	}

	var p CapabilityPack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return CapabilityPack{}, fmt.Errorf("%w %s: %v", ErrInvalidPack, name, err)
	}
	if err := checkSchemaVersion(p.SchemaVersion); err != nil {
		return CapabilityPack{}, fmt.Errorf("%w %s: %v", ErrInvalidPack, name, err)
	}
	if err := normalize(&p, ev); err != nil {
		return CapabilityPack{}, fmt.Errorf("%w %s: %v", ErrInvalidPack, name, err)
	}
	return p, nil
}

// validateDocument checks the YAML document against the pack JSON schema.
// The YAML tree is round-tripped through JSON so the validator sees JSON types.
func validateDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("document is not JSON compatible: %w", err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return err
	}
	schema, err := documentValidator()
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

func checkSchemaVersion(v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("schema_version %q: %w", v, err)
	}
	if !supported.Check(ver) {
		return fmt.Errorf("schema_version %s outside supported range %s", ver, SupportedSchema)
	}
	return nil
}

func normalize(p *CapabilityPack, ev *condition.Evaluator) error {
	seen := make(map[string]struct{}, len(p.Rules))
	for i := range p.Rules {
		r := &p.Rules[i]
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}

		lvl, err := ParseLevel(string(r.Level))
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		r.Level = lvl
		if r.Severity == "" {
			r.Severity = SeverityMedium
		}
		if r.Trigger.IsEmpty() {
			return fmt.Errorf("rule %s: trigger has no conditions", r.ID)
		}
		if err := ev.Compile(r.Trigger); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// LoadBuiltin parses the packs shipped with the binary, ordered by file name.
func LoadBuiltin(ev *condition.Evaluator) ([]CapabilityPack, error) {
	return loadFS(builtinFS, "builtin", ev)
}

// LoadDir parses every *.yaml / *.yml file in dir, ordered by file name.
func LoadDir(dir string, ev *condition.Evaluator) ([]CapabilityPack, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("pack dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pack dir %s: not a directory", dir)
	}
	return loadFS(os.DirFS(dir), ".", ev)
}

func loadFS(fsys fs.FS, root string, ev *condition.Evaluator) ([]CapabilityPack, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	packs := make([]CapabilityPack, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		p, err := Parse(data, name, ev)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}
