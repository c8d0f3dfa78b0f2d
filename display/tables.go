package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/scheduler"
	"github.com/teranos/dataloader/sym"
)

// timeLayout is the human timestamp format used in tables
const timeLayout = "2006-01-02 15:04:05"

// renderTable writes a pterm table with a header row
func renderTable(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// stateLabel prefixes a lifecycle state with its glyph
func stateLabel(state jobconfig.State) string {
	if glyph := sym.ForState(string(state)); glyph != "" {
		return glyph + " " + string(state)
	}
	return string(state)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func version(rec *jobconfig.Record) string {
	switch {
	case rec.DeployedVersion != "":
		return rec.DeployedVersion
	case rec.PublishedVersion != "":
		return rec.PublishedVersion
	}
	return "-"
}

// RenderRecords lists records, one per row
func RenderRecords(w io.Writer, records []*jobconfig.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No job configurations")
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.Itoa(rec.Revision),
			rec.ID,
			stateLabel(rec.State),
			version(rec),
			rec.Name,
			strconv.FormatBool(rec.IsActive),
			orDash(rec.CreatedBy),
			formatTime(rec.CreatedAt),
		})
	}
	return renderTable(w, []string{"REV", "ID", "STATE", "VERSION", "NAME", "ACTIVE", "CREATED BY", "CREATED"}, rows)
}

// RenderRecord prints one record as key/value lines
func RenderRecord(w io.Writer, rec *jobconfig.Record) error {
	rows := [][]string{
		{"ID", rec.ID},
		{"Lineage", rec.ParentID},
		{"Revision", strconv.Itoa(rec.Revision)},
		{"Item", rec.ItemID},
		{"Name", rec.Name},
		{"State", stateLabel(rec.State)},
		{"Version", version(rec)},
		{"Active", strconv.FormatBool(rec.IsActive)},
		{"Source", fragmentLabel(rec.Source)},
		{"Target", fragmentLabel(rec.Target)},
		{"Mapping", orDash(rec.MappingID)},
		{"Schedule", orDash(rec.ScheduleExpression)},
		{"Created", formatTime(rec.CreatedAt) + " by " + orDash(rec.CreatedBy)},
		{"Updated", formatTime(rec.UpdatedAt) + " by " + orDash(rec.UpdatedBy)},
	}
	if rec.ChunkSize != nil {
		rows = append(rows, []string{"Chunk size", strconv.Itoa(*rec.ChunkSize)})
	}
	if rec.DerivedFrom != "" {
		rows = append(rows, []string{"Derived from", rec.DerivedFrom})
	}
	return renderTable(w, []string{"FIELD", "VALUE"}, rows)
}

func fragmentLabel(f jobconfig.Fragment) string {
	parts := []string{orDash(f.ResourceType)}
	if f.ResourceID != "" {
		parts = append(parts, "("+f.ResourceID+")")
	}
	return strings.Join(parts, " ")
}

// RenderReferences lists lineages
func RenderReferences(w io.Writer, refs []*jobconfig.Reference) error {
	if len(refs) == 0 {
		_, err := fmt.Fprintln(w, "No lineages")
		return err
	}
	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, []string{ref.ParentID, ref.ItemID, orDash(ref.PublishedID), formatTime(ref.UpdatedAt)})
	}
	return renderTable(w, []string{"LINEAGE", "ITEM", "PUBLISHED", "UPDATED"}, rows)
}

// RenderResources lists catalog resources
func RenderResources(w io.Writer, resources []*catalog.Resource) error {
	if len(resources) == 0 {
		_, err := fmt.Fprintln(w, "No resources")
		return err
	}
	rows := make([][]string, 0, len(resources))
	for _, r := range resources {
		rows = append(rows, []string{r.ID, r.Name, r.Type, strconv.Itoa(len(r.Configuration))})
	}
	return renderTable(w, []string{"ID", "NAME", "TYPE", "SETTINGS"}, rows)
}

// RenderMappings lists catalog mappings
func RenderMappings(w io.Writer, mappings []*catalog.Mapping) error {
	if len(mappings) == 0 {
		_, err := fmt.Fprintln(w, "No mappings")
		return err
	}
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []string{m.ID, m.Name, strconv.Itoa(len(m.Fields))})
	}
	return renderTable(w, []string{"ID", "NAME", "FIELDS"}, rows)
}

// RenderMappingFields lists the fields of one mapping in order
func RenderMappingFields(w io.Writer, m *catalog.Mapping) error {
	rows := make([][]string, 0, len(m.Fields))
	for i, f := range m.Fields {
		rows = append(rows, []string{strconv.Itoa(i + 1), f.Source, f.Target, orDash(f.DataType)})
	}
	return renderTable(w, []string{"#", "SOURCE", "TARGET", "TYPE"}, rows)
}

// RenderDeployments lists the local scheduler queue
func RenderDeployments(w io.Writer, deployments []*scheduler.Deployment) error {
	if len(deployments) == 0 {
		_, err := fmt.Fprintln(w, "No deployments")
		return err
	}
	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		rows = append(rows, []string{d.ID, d.Name, d.State, d.RecordID, orDash(d.ScheduleExpression), d.Digest[:min(12, len(d.Digest))], formatTime(d.CreatedAt)})
	}
	return renderTable(w, []string{"ID", "NAME", "STATE", "RECORD", "SCHEDULE", "DIGEST", "QUEUED"}, rows)
}

// RenderEvents lists activity, newest first
func RenderEvents(w io.Writer, events []activity.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No activity")
		return err
	}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{formatTime(ev.CreatedAt), ev.Type, ev.EntityName, orDash(ev.Actor), orDash(ev.Detail)})
	}
	return renderTable(w, []string{"WHEN", "EVENT", "JOB", "ACTOR", "DETAIL"}, rows)
}
