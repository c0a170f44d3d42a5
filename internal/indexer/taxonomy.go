package indexer

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/lumi/internal/models"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

const metaKeyTopics = "topics"

// Taxonomy maps corpus directory names to labels and classes. The directories a records
// file sits in become metadata (school, major, department, level, topics) and a context
// line placed before each record's text.
type Taxonomy struct {
	DefaultContext string            `yaml:"default_context"`
	TopicLabel     string            `yaml:"topic_label"`
	Classes        []TaxonomyClass   `yaml:"classes"`
	Names          map[string]string `yaml:"names"`

	classOf map[string]*TaxonomyClass
}

// TaxonomyClass groups directory names stored under one metadata field. Classes are
// matched in order; the first one listing a name wins.
type TaxonomyClass struct {
	Field string   `yaml:"field"`
	Label string   `yaml:"label"`
	Keys  []string `yaml:"keys"`
}

// PathContext is what a taxonomy derives from one path.
type PathContext struct {
	Line     string
	Metadata map[string]string
}

// DefaultTaxonomy returns the built-in taxonomy of the crawled university corpus.
func DefaultTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(defaultTaxonomy)
}

// LoadTaxonomy reads a taxonomy YAML file. An empty path returns the built-in one.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes a taxonomy. Keys are matched case-insensitively.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	names := make(map[string]string, len(t.Names))
	for k, v := range t.Names {
		names[strings.ToLower(k)] = v
	}
	t.Names = names
	t.classOf = make(map[string]*TaxonomyClass)
	for i := range t.Classes {
		c := &t.Classes[i]
		if c.Field == "" {
			return nil, fmt.Errorf("parse taxonomy: class %d has no field", i)
		}
		if c.Field == metaKeyTopics || c.Field == models.MetaParentID || c.Field == models.MetaChunkIndex {
			return nil, fmt.Errorf("parse taxonomy: class field %q is reserved", c.Field)
		}
		for _, k := range c.Keys {
			k = strings.ToLower(k)
			if _, ok := t.classOf[k]; !ok {
				t.classOf[k] = c
			}
		}
	}
	return &t, nil
}

// Annotate derives metadata and a context line from the directories of path. Only names
// listed in Names count. A later directory of the same class overrides an earlier one.
// Without any match the line is DefaultContext.
func (t *Taxonomy) Annotate(path string) PathContext {
	pc := PathContext{Metadata: make(map[string]string)}
	var phrases, topics []string
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		key := strings.ToLower(part)
		name, ok := t.Names[key]
		if !ok {
			continue
		}
		if c, ok := t.classOf[key]; ok {
			pc.Metadata[c.Field] = key
			phrases = append(phrases, labelled(c.Label, name))
			continue
		}
		topics = append(topics, key)
		phrases = append(phrases, labelled(t.TopicLabel, name))
	}
	if len(topics) > 0 {
		pc.Metadata[metaKeyTopics] = strings.Join(topics, ", ")
	}
	if len(phrases) > 0 {
		pc.Line = strings.Join(phrases, " - ") + "."
	} else {
		pc.Line = t.DefaultContext
	}
	return pc
}

func labelled(label, name string) string {
	if label == "" {
		return name
	}
	return label + ": " + name
}

// apply prefixes the context line to the input's text and adds path metadata the record
// did not set itself.
func (pc PathContext) apply(in *models.DocumentInput) {
	if strings.TrimSpace(in.Content) == "" {
		return
	}
	if pc.Line != "" {
		body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in.Content), passagePrefix))
		in.Content = pc.Line + "\n\n" + body
	}
	if in.Metadata == nil {
		in.Metadata = make(map[string]string, len(pc.Metadata))
	}
	for k, v := range pc.Metadata {
		if _, ok := in.Metadata[k]; !ok {
			in.Metadata[k] = v
		}
	}
}
