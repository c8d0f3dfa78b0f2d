package lifecycle

import (
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	"github.com/teranos/dataloader/jobconfig"
)

// FragmentInput is the caller-supplied half of a job. System fields are
// never accepted from callers; they are derived from ResourceType.
type FragmentInput struct {
	ResourceID   string                 `json:"resourceId,omitempty" yaml:"resourceId,omitempty" toml:"resourceId,omitempty"`
	ResourceType string                 `json:"resourceType,omitempty" yaml:"resourceType,omitempty" toml:"resourceType,omitempty"`
	UserFields   map[string]interface{} `json:"userFields,omitempty" yaml:"userFields,omitempty" toml:"userFields,omitempty"`
}

// Definition is the job shape accepted by SaveDraft and Publish
type Definition struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	ParentID string `json:"parentId,omitempty" yaml:"parentId,omitempty" toml:"parentId,omitempty"`
	ItemID   string `json:"itemId,omitempty" yaml:"itemId,omitempty" toml:"itemId,omitempty"`

	Name        string          `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Notes       jobconfig.Notes `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`

	Source    FragmentInput `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Target    FragmentInput `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	MappingID string        `json:"mappingId,omitempty" yaml:"mappingId,omitempty" toml:"mappingId,omitempty"`
	ChunkSize *int          `json:"chunkSize,omitempty" yaml:"chunkSize,omitempty" toml:"chunkSize,omitempty"`

	ScheduleExpression string `json:"scheduleExpression,omitempty" yaml:"scheduleExpression,omitempty" toml:"scheduleExpression,omitempty"`
	IsScheduled        bool   `json:"isScheduled,omitempty" yaml:"isScheduled,omitempty" toml:"isScheduled,omitempty"`

	// Actor is recorded as creator; empty falls back to the context actor
	Actor string `json:"actor,omitempty" yaml:"actor,omitempty" toml:"actor,omitempty"`
}

// record builds an unsaved record carrying the definition's shape
func (d Definition) record() *jobconfig.Record {
	rec := &jobconfig.Record{
		ItemID:      d.ItemID,
		Name:        d.Name,
		Description: d.Description,
		Notes:       d.Notes,
		Source: jobconfig.Fragment{
			ResourceID:   d.Source.ResourceID,
			ResourceType: d.Source.ResourceType,
			UserFields:   util.CloneMap(d.Source.UserFields),
		},
		Target: jobconfig.Fragment{
			ResourceID:   d.Target.ResourceID,
			ResourceType: d.Target.ResourceType,
			UserFields:   util.CloneMap(d.Target.UserFields),
		},
		MappingID:          d.MappingID,
		ScheduleExpression: d.ScheduleExpression,
		IsScheduled:        d.IsScheduled,
	}
	if d.ChunkSize != nil {
		rec.ChunkSize = util.Ptr(*d.ChunkSize)
	}
	jobconfig.ApplySystemFields(rec)
	return rec
}

// overlay copies the fields the definition sets onto base, keeping base's
// identity, item and name. A new source or target resourceId brings the
// definition's resourceType with it, empty or not, so the catalog can resolve it.
func (d Definition) overlay(base *jobconfig.Record) *jobconfig.Record {
	rec := base.Clone()
	if d.Description != "" {
		rec.Description = d.Description
	}
	if d.Notes.Severity != "" {
		rec.Notes.Severity = d.Notes.Severity
	}
	if d.Notes.Impacts != "" {
		rec.Notes.Impacts = d.Notes.Impacts
	}
	d.Source.overlay(&rec.Source)
	d.Target.overlay(&rec.Target)
	if d.MappingID != "" {
		rec.MappingID = d.MappingID
	}
	if d.ChunkSize != nil {
		rec.ChunkSize = util.Ptr(*d.ChunkSize)
	}
	if d.ScheduleExpression != "" {
		rec.ScheduleExpression = d.ScheduleExpression
	}
	if d.IsScheduled {
		rec.IsScheduled = true
	}
	jobconfig.ApplySystemFields(rec)
	return rec
}

func (in FragmentInput) overlay(f *jobconfig.Fragment) {
	switch {
	case in.ResourceID != "":
		f.ResourceID = in.ResourceID
		f.ResourceType = in.ResourceType
	case in.ResourceType != "":
		f.ResourceType = in.ResourceType
	}
	if in.UserFields != nil {
		f.UserFields = util.CloneMap(in.UserFields)
	}
}

func validateChunkSize(n *int) error {
	if n != nil && *n <= 0 {
		return errors.NewValidationError("chunkSize must be positive, got %d", *n)
	}
	return nil
}
