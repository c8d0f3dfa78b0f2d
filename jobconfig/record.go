// Package jobconfig holds the job configuration model, version sequencing,
// system field defaults and the per-aggregate stores that persist them.
package jobconfig

import (
	"time"

	"github.com/teranos/dataloader/internal/util"
)

// State is the lifecycle state of a single record.
// DRAFT -> PUBLISHED -> DEPLOYED; every transition writes a new record.
type State string

const (
	StateDraft     State = "DRAFT"
	StatePublished State = "PUBLISHED"
	StateDeployed  State = "DEPLOYED"
)

// Valid reports whether s is one of the three lifecycle states
func (s State) Valid() bool {
	switch s {
	case StateDraft, StatePublished, StateDeployed:
		return true
	}
	return false
}

// Notes are the severity and impact notes attached to a job
type Notes struct {
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty" toml:"severity,omitempty"`
	Impacts  string `json:"impacts,omitempty" yaml:"impacts,omitempty" toml:"impacts,omitempty"`
}

// Fragment is one side (source or target) of a job configuration
type Fragment struct {
	ResourceID   string                 `json:"resourceId,omitempty"`
	ResourceType string                 `json:"resourceType,omitempty"`
	UserFields   map[string]interface{} `json:"userFields,omitempty"`
	SystemFields map[string]interface{} `json:"systemFields,omitempty"`
}

func (f Fragment) clone() Fragment {
	f.UserFields = util.CloneMap(f.UserFields)
	f.SystemFields = util.CloneMap(f.SystemFields)
	return f
}

// Record is one immutable snapshot of a job configuration.
// ParentID groups a lineage: it is set on the first draft (to the draft's own
// id) and inherited by every record published or deployed from it.
type Record struct {
	ID          string `json:"id"`
	ParentID    string `json:"parentId"`
	Revision    int    `json:"revision"`
	ItemID      string `json:"itemId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Notes       Notes  `json:"notes"`

	Source    Fragment `json:"source"`
	Target    Fragment `json:"target"`
	MappingID string   `json:"mappingId,omitempty"`
	ChunkSize *int     `json:"chunkSize,omitempty"`

	ScheduleExpression string `json:"scheduleExpression,omitempty"`
	IsScheduled        bool   `json:"isScheduled"`

	State    State `json:"state"`
	IsActive bool  `json:"isActive"`

	PublishedVersion string `json:"publishedVersion,omitempty"`
	DeployedVersion  string `json:"deployedVersion,omitempty"`

	// DerivedFrom is the record a PUBLISHED or DEPLOYED row was copied from
	DerivedFrom string `json:"derivedFrom,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDrafted reports whether the record is a draft
func (r *Record) IsDrafted() bool { return r.State == StateDraft }

// IsPublished reports whether the record is a published snapshot
func (r *Record) IsPublished() bool { return r.State == StatePublished }

// IsDeployed reports whether the record has been deployed
func (r *Record) IsDeployed() bool { return r.State == StateDeployed }

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Source = r.Source.clone()
	c.Target = r.Target.clone()
	if r.ChunkSize != nil {
		c.ChunkSize = util.Ptr(*r.ChunkSize)
	}
	return &c
}

// Derive copies the descriptive and structural fields of r into a fresh
// record of the given state. Identity, versions and audit fields are left
// for the caller; ParentID and DerivedFrom point back at r.
func (r *Record) Derive(state State) *Record {
	c := r.Clone()
	c.ID = ""
	c.Revision = 0
	c.State = state
	c.IsActive = false
	c.PublishedVersion = ""
	c.DeployedVersion = ""
	c.DerivedFrom = r.ID
	c.ParentID = r.ParentID
	if c.ParentID == "" {
		c.ParentID = r.ID
	}
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	return c
}

// Reference is the lineage registry row created with the first draft.
// PublishedID points at the published record that DeployLineage deploys.
type Reference struct {
	ParentID    string    `json:"parentId"`
	ItemID      string    `json:"itemId"`
	PublishedID string    `json:"publishedId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
