// Package bundle assembles the runtime bundle handed to the scheduler for a
// published or deployed job configuration.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	"github.com/teranos/dataloader/jobconfig"
)

// ConnectionConfigKey holds the resolved resource configuration inside
// readerConfig and writerConfig.
const ConnectionConfigKey = "connectionConfig"

// ResourceResolver looks up catalog resources
type ResourceResolver interface {
	GetResource(ctx context.Context, id string) (*catalog.Resource, error)
}

// MappingProvider looks up catalog mappings
type MappingProvider interface {
	GetMapping(ctx context.Context, id string) (*catalog.Mapping, error)
}

// JobNotes carries only the non-empty descriptive fields
type JobNotes struct {
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Impacts     string `json:"impacts,omitempty"`
}

// Bundle is the runtime configuration submitted to the scheduler
type Bundle struct {
	ConfigName   string                 `json:"configName"`
	ChunkSize    *int                   `json:"chunkSize,omitempty"`
	JobNotes     *JobNotes              `json:"jobNotes,omitempty"`
	ReaderConfig map[string]interface{} `json:"readerConfig"`
	WriterConfig map[string]interface{} `json:"writerConfig"`
	InputFields  []catalog.MappingField `json:"inputFields,omitempty"`
}

// Canonical renders b as JSON. Struct fields keep declaration order and map
// keys are sorted, so equal bundles render to identical bytes.
func (b *Bundle) Canonical() ([]byte, error) {
	return json.Marshal(b)
}

// Digest is the hex sha256 of the canonical form
func (b *Bundle) Digest() (string, error) {
	raw, err := b.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Assembler builds bundles from records and live catalog lookups
type Assembler struct {
	resources ResourceResolver
	mappings  MappingProvider
}

// NewAssembler creates an assembler over the given lookups
func NewAssembler(resources ResourceResolver, mappings MappingProvider) *Assembler {
	return &Assembler{resources: resources, mappings: mappings}
}

// Assemble merges the record's fragments and resolved references into a bundle.
// User fields override system fields on key collision. A referenced resource
// or mapping that no longer exists fails with a validation error.
func (a *Assembler) Assemble(ctx context.Context, rec *jobconfig.Record) (*Bundle, error) {
	if rec == nil {
		return nil, errors.NewValidationError("no job configuration to assemble")
	}
	if rec.IsDrafted() {
		return nil, errors.NewValidationError("job configuration %s is a draft; publish it first", rec.ID)
	}

	b := &Bundle{
		ConfigName:   rec.Name,
		ReaderConfig: util.MergeMaps(rec.Source.SystemFields, rec.Source.UserFields),
		WriterConfig: util.MergeMaps(rec.Target.SystemFields, rec.Target.UserFields),
	}
	if rec.ChunkSize != nil {
		b.ChunkSize = util.Ptr(*rec.ChunkSize)
	}

	notes := JobNotes{
		Description: rec.Description,
		Severity:    rec.Notes.Severity,
		Impacts:     rec.Notes.Impacts,
	}
	if notes != (JobNotes{}) {
		b.JobNotes = &notes
	}

	if err := a.attachConnection(ctx, b.ReaderConfig, rec.Source.ResourceID, "source"); err != nil {
		return nil, err
	}
	if err := a.attachConnection(ctx, b.WriterConfig, rec.Target.ResourceID, "target"); err != nil {
		return nil, err
	}

	if rec.MappingID != "" {
		if a.mappings == nil {
			return nil, errors.NewValidationError("mapping %s cannot be resolved", rec.MappingID)
		}
		m, err := a.mappings.GetMapping(ctx, rec.MappingID)
		if err != nil {
			return nil, resolveError(err, "mapping", rec.MappingID)
		}
		if len(m.Fields) > 0 {
			b.InputFields = append([]catalog.MappingField(nil), m.Fields...)
		}
	}

	return b, nil
}

func (a *Assembler) attachConnection(ctx context.Context, config map[string]interface{}, resourceID, side string) error {
	if resourceID == "" {
		return nil
	}
	if a.resources == nil {
		return errors.NewValidationError("%s resource %s cannot be resolved", side, resourceID)
	}
	r, err := a.resources.GetResource(ctx, resourceID)
	if err != nil {
		return resolveError(err, side+" resource", resourceID)
	}
	connection := util.CloneMap(r.Configuration)
	if connection == nil {
		connection = map[string]interface{}{}
	}
	config[ConnectionConfigKey] = connection
	return nil
}

func resolveError(err error, entity, id string) error {
	if errors.IsNotFoundError(err) {
		return errors.WithSecondaryError(errors.NewValidationError("%s %s does not exist", entity, id), err)
	}
	return err
}
