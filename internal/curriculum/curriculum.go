// Package curriculum loads the read-only Phase -> PO -> EO tree the planner
// schedules against.
package curriculum

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	appLog "cadetplan/internal/log"
	"cadetplan/internal/model"
	"cadetplan/internal/validate"
)

// ErrInvalidCurriculum is wrapped by every validation failure.
var ErrInvalidCurriculum = errors.New("curriculum: invalid curriculum")

type document struct {
	Phases []phaseDoc `yaml:"phases" validate:"required,min=1,dive"`
}

type phaseDoc struct {
	Number int     `yaml:"number" validate:"gt=0"`
	Name   string  `yaml:"name" validate:"required"`
	POs    []poDoc `yaml:"performance_objectives" validate:"dive"`
}

type poDoc struct {
	ID    string  `yaml:"id" validate:"required"`
	Title string  `yaml:"title"`
	EOs   []eoDoc `yaml:"enabling_objectives" validate:"dive"`
}

type eoDoc struct {
	ID      string `yaml:"id" validate:"required"`
	Title   string `yaml:"title"`
	Type    string `yaml:"type" validate:"required,oneof=mandatory optional"`
	Periods int    `yaml:"periods" validate:"gt=0"`
}

// LoadFile reads and parses a curriculum YAML file.
func LoadFile(path string) (*model.Curriculum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("curriculum: read %s: %w", path, err)
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	appLog.Info("curriculum loaded", "path", path, "phases", len(c.Phases))
	return c, nil
}

// Parse decodes a curriculum document. Unknown keys, schema violations,
// duplicate phase numbers and duplicate EO ids all reject the document.
func Parse(r io.Reader) (*model.Curriculum, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &validate.ValidationError{Err: ErrInvalidCurriculum, Fields: []validate.FieldError{{Field: "phases", Error: "document is empty"}}}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCurriculum, err)
	}
	if err := validate.Struct(validate.New(), ErrInvalidCurriculum, doc); err != nil {
		return nil, err
	}
	if err := checkUnique(doc); err != nil {
		return nil, err
	}
	return model.NewCurriculum(toModel(doc)), nil
}

func checkUnique(doc document) error {
	fields := make([]validate.FieldError, 0)
	phases := make(map[int]bool)
	eos := make(map[string]bool)
	for i, ph := range doc.Phases {
		if phases[ph.Number] {
			fields = append(fields, validate.FieldError{
				Field: fmt.Sprintf("phases[%d].number", i),
				Error: fmt.Sprintf("duplicate phase number %d", ph.Number),
			})
		}
		phases[ph.Number] = true
		for j, po := range ph.POs {
			for k, eo := range po.EOs {
				if eos[eo.ID] {
					fields = append(fields, validate.FieldError{
						Field: fmt.Sprintf("phases[%d].performance_objectives[%d].enabling_objectives[%d].id", i, j, k),
						Error: fmt.Sprintf("duplicate EO id %q", eo.ID),
					})
				}
				eos[eo.ID] = true
			}
		}
	}
	if len(fields) > 0 {
		return &validate.ValidationError{Err: ErrInvalidCurriculum, Fields: fields}
	}
	return nil
}

func toModel(doc document) []model.Phase {
	phases := make([]model.Phase, 0, len(doc.Phases))
	for _, ph := range doc.Phases {
		p := model.Phase{Number: ph.Number, Name: ph.Name, POs: make([]model.PerformanceObjective, 0, len(ph.POs))}
		for _, po := range ph.POs {
			mpo := model.PerformanceObjective{ID: po.ID, Title: po.Title, EOs: make([]model.EO, 0, len(po.EOs))}
			for _, eo := range po.EOs {
				mpo.EOs = append(mpo.EOs, model.EO{
					ID:      eo.ID,
					Title:   eo.Title,
					Type:    model.ObjectiveType(eo.Type),
					Periods: eo.Periods,
				})
			}
			p.POs = append(p.POs, mpo)
		}
		phases = append(phases, p)
	}
	return phases
}
