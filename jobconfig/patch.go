package jobconfig

// Patch is a partial update of a record. Nil fields are left untouched.
type Patch struct {
	Name        *string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Severity    *string `json:"severity,omitempty" yaml:"severity,omitempty" toml:"severity,omitempty"`
	Impacts     *string `json:"impacts,omitempty" yaml:"impacts,omitempty" toml:"impacts,omitempty"`

	SourceResourceID   *string                `json:"sourceResourceId,omitempty" yaml:"sourceResourceId,omitempty" toml:"sourceResourceId,omitempty"`
	SourceResourceType *string                `json:"sourceResourceType,omitempty" yaml:"sourceResourceType,omitempty" toml:"sourceResourceType,omitempty"`
	SourceUserFields   map[string]interface{} `json:"sourceUserFields,omitempty" yaml:"sourceUserFields,omitempty" toml:"sourceUserFields,omitempty"`
	TargetResourceID   *string                `json:"targetResourceId,omitempty" yaml:"targetResourceId,omitempty" toml:"targetResourceId,omitempty"`
	TargetResourceType *string                `json:"targetResourceType,omitempty" yaml:"targetResourceType,omitempty" toml:"targetResourceType,omitempty"`
	TargetUserFields   map[string]interface{} `json:"targetUserFields,omitempty" yaml:"targetUserFields,omitempty" toml:"targetUserFields,omitempty"`

	MappingID          *string `json:"mappingId,omitempty" yaml:"mappingId,omitempty" toml:"mappingId,omitempty"`
	ChunkSize          *int    `json:"chunkSize,omitempty" yaml:"chunkSize,omitempty" toml:"chunkSize,omitempty"`
	ScheduleExpression *string `json:"scheduleExpression,omitempty" yaml:"scheduleExpression,omitempty" toml:"scheduleExpression,omitempty"`
	IsScheduled        *bool   `json:"isScheduled,omitempty" yaml:"isScheduled,omitempty" toml:"isScheduled,omitempty"`
}

// Empty reports whether the patch sets nothing
func (p Patch) Empty() bool {
	return p.descriptiveEmpty() && p.structuralEmpty()
}

// Descriptive reports whether the patch only touches name, description and notes
func (p Patch) Descriptive() bool {
	return p.structuralEmpty()
}

func (p Patch) descriptiveEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Severity == nil && p.Impacts == nil
}

func (p Patch) structuralEmpty() bool {
	return p.SourceResourceID == nil && p.SourceResourceType == nil && p.SourceUserFields == nil &&
		p.TargetResourceID == nil && p.TargetResourceType == nil && p.TargetUserFields == nil &&
		p.MappingID == nil && p.ChunkSize == nil && p.ScheduleExpression == nil && p.IsScheduled == nil
}

// Apply overwrites the non-nil fields of p onto r.
// Resource type changes re-derive that side's system fields.
func (p Patch) Apply(r *Record) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Severity != nil {
		r.Notes.Severity = *p.Severity
	}
	if p.Impacts != nil {
		r.Notes.Impacts = *p.Impacts
	}

	if p.SourceResourceID != nil {
		r.Source.ResourceID = *p.SourceResourceID
	}
	if p.SourceResourceType != nil {
		r.Source.ResourceType = *p.SourceResourceType
		r.Source.SystemFields = SystemFields(r.Source.ResourceType, RoleReader)
	}
	if p.SourceUserFields != nil {
		r.Source.UserFields = p.SourceUserFields
	}
	if p.TargetResourceID != nil {
		r.Target.ResourceID = *p.TargetResourceID
	}
	if p.TargetResourceType != nil {
		r.Target.ResourceType = *p.TargetResourceType
		r.Target.SystemFields = SystemFields(r.Target.ResourceType, RoleWriter)
	}
	if p.TargetUserFields != nil {
		r.Target.UserFields = p.TargetUserFields
	}

	if p.MappingID != nil {
		r.MappingID = *p.MappingID
	}
	if p.ChunkSize != nil {
		c := *p.ChunkSize
		r.ChunkSize = &c
	}
	if p.ScheduleExpression != nil {
		r.ScheduleExpression = *p.ScheduleExpression
	}
	if p.IsScheduled != nil {
		r.IsScheduled = *p.IsScheduled
	}
}
