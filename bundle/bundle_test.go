package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	"github.com/teranos/dataloader/jobconfig"
)

type fakeCatalog struct {
	resources map[string]*catalog.Resource
	mappings  map[string]*catalog.Mapping
	lookups   int
}

func (f *fakeCatalog) GetResource(_ context.Context, id string) (*catalog.Resource, error) {
	f.lookups++
	if r, ok := f.resources[id]; ok {
		return r, nil
	}
	return nil, errors.NewNotFoundError("resource %s", id)
}

func (f *fakeCatalog) GetMapping(_ context.Context, id string) (*catalog.Mapping, error) {
	f.lookups++
	if m, ok := f.mappings[id]; ok {
		return m, nil
	}
	return nil, errors.NewNotFoundError("mapping %s", id)
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		resources: map[string]*catalog.Resource{
			"pg": {ID: "pg", Type: "POSTGRESQL", Configuration: map[string]interface{}{"host": "db", "port": float64(5432)}},
			"dt": {ID: "dt", Type: "DATATABLE"},
		},
		mappings: map[string]*catalog.Mapping{
			"m1":    {ID: "m1", Fields: []catalog.MappingField{{Source: "a", Target: "b"}, {Source: "c", Target: "d", DataType: "TEXT"}}},
			"empty": {ID: "empty", Fields: []catalog.MappingField{}},
		},
	}
}

func publishedRecord() *jobconfig.Record {
	return &jobconfig.Record{
		ID:          "p-1",
		ParentID:    "d-1",
		Name:        "nightly customers",
		Description: "copy customers",
		State:       jobconfig.StatePublished,
		Source: jobconfig.Fragment{
			ResourceID:   "pg",
			ResourceType: "POSTGRESQL",
			SystemFields: jobconfig.SystemFields("POSTGRESQL", jobconfig.RoleReader),
			UserFields:   map[string]interface{}{"reader": "custom-jdbc", "query": "SELECT * FROM customers"},
		},
		Target: jobconfig.Fragment{
			ResourceID:   "dt",
			ResourceType: "DATATABLE",
			SystemFields: jobconfig.SystemFields("DATATABLE", jobconfig.RoleWriter),
		},
		MappingID: "m1",
		ChunkSize: util.Ptr(250),
	}
}

func TestAssemble(t *testing.T) {
	a := NewAssembler(newCatalog(), newCatalog())

	b, err := a.Assemble(context.Background(), publishedRecord())
	require.NoError(t, err)

	assert.Equal(t, "nightly customers", b.ConfigName)
	require.NotNil(t, b.ChunkSize)
	assert.Equal(t, 250, *b.ChunkSize)

	// user fields win over system fields
	assert.Equal(t, "custom-jdbc", b.ReaderConfig["reader"])
	assert.Equal(t, "postgresql", b.ReaderConfig["dialect"])
	assert.Equal(t, "SELECT * FROM customers", b.ReaderConfig["query"])
	assert.Equal(t, map[string]interface{}{"host": "db", "port": float64(5432)}, b.ReaderConfig[ConnectionConfigKey])

	assert.Equal(t, "datatable-writer", b.WriterConfig["writer"])
	assert.Equal(t, map[string]interface{}{}, b.WriterConfig[ConnectionConfigKey])

	require.NotNil(t, b.JobNotes)
	assert.Equal(t, JobNotes{Description: "copy customers"}, *b.JobNotes)
	assert.Len(t, b.InputFields, 2)
}

func TestAssembleDoesNotMutateRecord(t *testing.T) {
	rec := publishedRecord()
	b, err := NewAssembler(newCatalog(), newCatalog()).Assemble(context.Background(), rec)
	require.NoError(t, err)

	b.ReaderConfig["reader"] = "changed"
	assert.Equal(t, "jdbc", rec.Source.SystemFields["reader"])
	assert.Equal(t, "custom-jdbc", rec.Source.UserFields["reader"])
	assert.NotContains(t, rec.Source.UserFields, ConnectionConfigKey)
}

func TestAssembleIsDeterministic(t *testing.T) {
	a := NewAssembler(newCatalog(), newCatalog())

	first, err := a.Assemble(context.Background(), publishedRecord())
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), publishedRecord())
	require.NoError(t, err)

	c1, err := first.Canonical()
	require.NoError(t, err)
	c2, err := second.Canonical()
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	d1, err := first.Digest()
	require.NoError(t, err)
	d2, err := second.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestAssembleOptionalKeys(t *testing.T) {
	rec := &jobconfig.Record{
		ID:        "p-2",
		Name:      "bare",
		State:     jobconfig.StateDeployed,
		MappingID: "empty",
	}

	b, err := NewAssembler(newCatalog(), newCatalog()).Assemble(context.Background(), rec)
	require.NoError(t, err)

	raw, err := b.Canonical()
	require.NoError(t, err)
	assert.JSONEq(t, `{"configName":"bare","readerConfig":{},"writerConfig":{}}`, string(raw))
}

func TestAssembleMissingReferences(t *testing.T) {
	a := NewAssembler(newCatalog(), newCatalog())

	rec := publishedRecord()
	rec.Source.ResourceID = "gone"
	_, err := a.Assemble(context.Background(), rec)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "gone")

	rec = publishedRecord()
	rec.MappingID = "gone"
	_, err = a.Assemble(context.Background(), rec)
	assert.True(t, errors.IsValidationError(err))
}

func TestAssembleRejectsDraft(t *testing.T) {
	rec := publishedRecord()
	rec.State = jobconfig.StateDraft

	_, err := NewAssembler(newCatalog(), newCatalog()).Assemble(context.Background(), rec)
	assert.True(t, errors.IsValidationError(err))
}
