// Package seed loads class definitions from a YAML file and applies them
// through the schema registry at startup.
//
//	classes:
//	  - name: Task
//	    fields: {title: String, done: Bool}
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/pkg/models"
)

// File is one parsed schema bootstrap document.
type File struct {
	Classes []Class `yaml:"classes"`
}

// Class declares one class: a name and a field-to-type-name mapping.
type Class struct {
	Name   string            `yaml:"name"`
	Fields map[string]string `yaml:"fields"`
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse validates a seed document: every class needs a name and every field
// a recognized type name.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, c := range f.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("classes[%d]: missing name", i)
		}
		for field, typeName := range c.Fields {
			if _, err := models.ParseFieldType(typeName); err != nil {
				return nil, fmt.Errorf("class %s: field %q: %w", c.Name, field, err)
			}
		}
	}
	return &f, nil
}

// Apply creates every class in the file through the registry, so a registry
// in legacy seed-record mode seeds records the legacy way.
func (f *File) Apply(ctx context.Context, reg *anyclass.Registry) error {
	for _, c := range f.Classes {
		schema := make(map[string]any, len(c.Fields))
		for name, typeName := range c.Fields {
			schema[name] = typeName
		}
		if err := reg.CreateTable(ctx, c.Name, schema); err != nil {
			return fmt.Errorf("class %s: %w", c.Name, err)
		}
	}
	return nil
}
