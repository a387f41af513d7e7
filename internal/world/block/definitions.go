package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionFile формат YAML файла с описанием блоков
type definitionFile struct {
	Blocks []definitionEntry `yaml:"blocks"`
}

type definitionEntry struct {
	ID          BlockID        `yaml:"id"`
	Name        string         `yaml:"name"`
	Visible     *bool          `yaml:"visible"` // по умолчанию true
	Transparent bool           `yaml:"transparent"`
	Material    int            `yaml:"material"`
	Faces       map[string]int `yaml:"faces"`
}

// faceAliases сопоставляет ключи из YAML граням. "sides" покрывает все боковые грани.
var faceAliases = map[string][]Side{
	"-x":     {SideXNeg},
	"+x":     {SideXPos},
	"-y":     {SideYNeg},
	"+y":     {SideYPos},
	"-z":     {SideZNeg},
	"+z":     {SideZPos},
	"bottom": {SideYNeg},
	"top":    {SideYPos},
	"sides":  {SideXNeg, SideXPos, SideZNeg, SideZPos},
}

// LoadDefinitions читает описания блоков из YAML файла
func LoadDefinitions(path string) (*DefinitionRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read block definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions разбирает описания блоков из YAML
func ParseDefinitions(data []byte) (*DefinitionRegistry, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse block definitions: %w", err)
	}

	r := NewDefinitionRegistry()
	for _, entry := range file.Blocks {
		def, err := entry.toDefinition()
		if err != nil {
			return nil, err
		}
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (e definitionEntry) toDefinition() (Definition, error) {
	visible := e.Visible == nil || *e.Visible
	if !visible {
		return Definition{ID: e.ID, Name: e.Name}, nil
	}

	def := UniformDefinition(e.ID, e.Name, e.Material, e.Transparent)

	// "sides" применяем первым, чтобы конкретные грани могли его переопределить
	if m, ok := e.Faces["sides"]; ok {
		for _, side := range faceAliases["sides"] {
			def.Faces[side] = m
		}
	}
	for key, material := range e.Faces {
		if key == "sides" {
			continue
		}
		sides, ok := faceAliases[key]
		if !ok {
			return Definition{}, fmt.Errorf("block %q: unknown face %q", e.Name, key)
		}
		for _, side := range sides {
			def.Faces[side] = material
		}
	}
	return def, nil
}
