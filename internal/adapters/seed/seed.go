// Package seed loads case templates and their evidence from YAML.
package seed

import (
	"bytes"
	"cmp"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/whodunit/internal/domain/model"
)

//go:embed default.yaml
var defaultSeed []byte

// Document is the root of a seed file.
type Document struct {
	Cases []Case `yaml:"cases"`
}

// Case is one template with its suspects and evidence.
type Case struct {
	ID          int64      `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Difficulty  int        `yaml:"difficulty"`
	Culprit     string     `yaml:"culprit"`
	Suspects    []Suspect  `yaml:"suspects"`
	Evidence    []Evidence `yaml:"evidence"`
}

// Suspect is a seed suspect.
type Suspect struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Evidence is a seed evidence item.
type Evidence struct {
	ID              int64  `yaml:"id"`
	Description     string `yaml:"description"`
	IsTrue          bool   `yaml:"is_true"`
	IsFakeCandidate bool   `yaml:"is_fake_candidate"`
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidSeed)
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile parses the seed at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed %q: %w", path, err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("seed %q: %w", path, err)
	}
	return doc, nil
}

// Default returns the seed compiled into the binary.
func Default() (*Document, error) {
	return Parse(bytes.NewReader(defaultSeed))
}

// Load reads path, or the compiled-in seed when path is empty.
func Load(path string) (*Document, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Validate checks ids, difficulty, the culprit and the evidence partition.
func (d *Document) Validate() error {
	if len(d.Cases) == 0 {
		return fmt.Errorf("%w: no cases", ErrInvalidSeed)
	}
	seen := make(map[int64]struct{}, len(d.Cases))
	for _, c := range d.Cases {
		if c.ID <= 0 {
			return fmt.Errorf("%w: case id %d must be positive", ErrInvalidSeed, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate case id %d", ErrInvalidSeed, c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := c.validate(); err != nil {
			return fmt.Errorf("%w: case %d: %w", ErrInvalidSeed, c.ID, err)
		}
	}
	return nil
}

func (c Case) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("title is empty")
	}
	if c.Difficulty < 1 || c.Difficulty > 5 {
		return fmt.Errorf("difficulty %d outside 1-5", c.Difficulty)
	}
	if len(c.Suspects) == 0 {
		return errors.New("no suspects")
	}
	names := make(map[string]struct{}, len(c.Suspects))
	for _, s := range c.Suspects {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			return errors.New("suspect without a name")
		}
		if _, dup := names[key]; dup {
			return fmt.Errorf("duplicate suspect %q", s.Name)
		}
		names[key] = struct{}{}
	}
	if _, ok := names[strings.ToLower(strings.TrimSpace(c.Culprit))]; !ok {
		return fmt.Errorf("culprit %q is not a listed suspect", c.Culprit)
	}

	ids := make(map[int64]struct{}, len(c.Evidence))
	var truths, decoys int
	for _, e := range c.Evidence {
		if e.ID <= 0 {
			return fmt.Errorf("evidence id %d must be positive", e.ID)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("duplicate evidence id %d", e.ID)
		}
		ids[e.ID] = struct{}{}
		if e.IsTrue == e.IsFakeCandidate {
			return fmt.Errorf("evidence %d must be exactly one of is_true and is_fake_candidate", e.ID)
		}
		if e.IsTrue {
			truths++
		} else {
			decoys++
		}
	}
	if truths == 0 || decoys == 0 {
		return fmt.Errorf("needs true evidence and fake candidates, got %d and %d", truths, decoys)
	}
	return nil
}

// Templates returns the case templates ordered by case id.
func (d *Document) Templates() []model.CaseTemplate {
	out := make([]model.CaseTemplate, 0, len(d.Cases))
	for _, c := range d.Cases {
		suspects := make([]model.Suspect, 0, len(c.Suspects))
		for _, s := range c.Suspects {
			suspects = append(suspects, model.Suspect{Name: strings.TrimSpace(s.Name), Description: s.Description})
		}
		out = append(out, model.CaseTemplate{
			CaseID:      c.ID,
			Title:       c.Title,
			Description: c.Description,
			Difficulty:  c.Difficulty,
			Suspects:    suspects,
			Culprit:     strings.TrimSpace(c.Culprit),
		})
	}
	slices.SortFunc(out, func(a, b model.CaseTemplate) int { return cmp.Compare(a.CaseID, b.CaseID) })
	return out
}

// Evidence returns every case's evidence ordered by evidence id.
func (d *Document) Evidence() map[int64][]model.EvidenceItem {
	out := make(map[int64][]model.EvidenceItem, len(d.Cases))
	for _, c := range d.Cases {
		items := make([]model.EvidenceItem, 0, len(c.Evidence))
		for _, e := range c.Evidence {
			items = append(items, model.EvidenceItem{
				EvidenceID:      e.ID,
				CaseID:          c.ID,
				Description:     e.Description,
				IsTrue:          e.IsTrue,
				IsFakeCandidate: e.IsFakeCandidate,
			})
		}
		slices.SortFunc(items, func(a, b model.EvidenceItem) int { return cmp.Compare(a.EvidenceID, b.EvidenceID) })
		out[c.ID] = items
	}
	return out
}

