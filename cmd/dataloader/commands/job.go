package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/display"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/lifecycle"
	"github.com/teranos/dataloader/sym"
)

// JobCmd represents the job command
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Job + " Draft, publish, deploy and inspect job configurations",
	Long: sym.Job + ` job — Job configuration lifecycle

A job configuration moves data from a source resource into a target resource
through a mapping. Every lifecycle transition writes a new immutable record:

  ` + sym.Draft + ` DRAFT      editable, unversioned
  ` + sym.Published + ` PUBLISHED  immutable snapshot with a published version (v1.0, v1.1, ...)
  ` + sym.Deployed + ` DEPLOYED   handed to the scheduler with its own deployed version (v1.0, v1.1, ...)

Definitions are read from .yaml, .json or .toml files, or YAML on stdin (-f -).

Examples:
  dataloader job draft -f orders.yaml             # Save a draft
  dataloader job publish --id <draft-id>          # Publish a stored record
  dataloader job publish -f orders.yaml           # Publish a definition directly
  dataloader job deploy <published-id>            # Deploy and submit
  dataloader job deploy --lineage <parent-id>     # Deploy the lineage's published record
  dataloader job resubmit <deployed-id>           # Retry a failed submission
  dataloader job lineage <parent-id>              # Every record of a lineage
  dataloader job ls --item shop-42                # Lineages of one item
  dataloader job bundle <id>                      # Preview the scheduler bundle`,
}

var jobDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Save a draft job configuration",
	Long: `Save a draft from a definition file. A definition carrying the id of an
existing draft updates that draft in place; one carrying only a parentId
starts a new draft in that lineage.`,
	Args: cobra.NoArgs,
	RunE: runJobDraft,
}

var jobPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a job configuration",
	Long: `Publish a stored record (--id), the latest record of a lineage overlaid
with a definition (--lineage with -f), or a new definition (-f).

The published version is the next minor version of the lineage.`,
	Args: cobra.NoArgs,
	RunE: runJobPublish,
}

var jobDeployCmd = &cobra.Command{
	Use:   "deploy [published-id]",
	Short: "Deploy a published job configuration and submit it",
	Long: `Create a DEPLOYED record from a published record and submit its bundle
to the configured scheduler. With --no-submit only the record is written.

If submission fails the DEPLOYED record is kept; use 'job resubmit'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobDeploy,
}

var jobResubmitCmd = &cobra.Command{
	Use:   "resubmit <deployed-id>",
	Short: "Submit a deployed record's bundle again",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobResubmit,
}

var jobUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Apply a partial update to a record",
	Long: `Apply a patch to a record. Drafts accept any field. Published and deployed
records only accept descriptive fields (name, description, severity, impacts).

The patch is read from -f, or built from flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobUpdate,
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobLineageCmd = &cobra.Command{
	Use:   "lineage <parent-id>",
	Short: "List every record of a lineage, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobLineage,
}

var jobListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List lineages",
	Args:    cobra.NoArgs,
	RunE:    runJobList,
}

var jobRemoveCmd = &cobra.Command{
	Use:     "rm <parent-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a lineage and every record in it",
	Args:    cobra.ExactArgs(1),
	RunE:    runJobRemove,
}

var jobBundleCmd = &cobra.Command{
	Use:   "bundle <id>",
	Short: "Preview the bundle a record would deploy as",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobBundle,
}

var jobActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Mark a record active (or inactive with --off)",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobActivate,
}

var jobActivityCmd = &cobra.Command{
	Use:   "activity <id>",
	Short: "Show recent activity for a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobActivity,
}

var (
	jobFile      string
	jobID        string
	jobLineageID string
	jobItemID    string
	jobNoSubmit  bool
	jobOff       bool
	jobLimit     int

	patchName        string
	patchDescription string
	patchSeverity    string
	patchImpacts     string
	patchSchedule    string
	patchMappingID   string
	patchChunkSize   int
)

func init() {
	jobDraftCmd.Flags().StringVarP(&jobFile, "file", "f", "", "Definition file (.yaml, .json, .toml, or - for stdin)")

	jobPublishCmd.Flags().StringVarP(&jobFile, "file", "f", "", "Definition file (.yaml, .json, .toml, or - for stdin)")
	jobPublishCmd.Flags().StringVar(&jobID, "id", "", "Publish the stored record with this id")
	jobPublishCmd.Flags().StringVar(&jobLineageID, "lineage", "", "Publish into this lineage")
	jobPublishCmd.MarkFlagsMutuallyExclusive("id", "file")
	jobPublishCmd.MarkFlagsMutuallyExclusive("id", "lineage")

	jobDeployCmd.Flags().StringVar(&jobLineageID, "lineage", "", "Deploy the published record of this lineage")
	jobDeployCmd.Flags().BoolVar(&jobNoSubmit, "no-submit", false, "Write the DEPLOYED record without submitting")

	jobUpdateCmd.Flags().StringVarP(&jobFile, "file", "f", "", "Patch file (.yaml, .json, .toml, or - for stdin)")
	jobUpdateCmd.Flags().StringVar(&patchName, "name", "", "New name")
	jobUpdateCmd.Flags().StringVar(&patchDescription, "description", "", "New description")
	jobUpdateCmd.Flags().StringVar(&patchSeverity, "severity", "", "New severity note")
	jobUpdateCmd.Flags().StringVar(&patchImpacts, "impacts", "", "New impacts note")
	jobUpdateCmd.Flags().StringVar(&patchSchedule, "schedule", "", "New schedule expression (drafts only)")
	jobUpdateCmd.Flags().StringVar(&patchMappingID, "mapping", "", "New mapping id (drafts only)")
	jobUpdateCmd.Flags().IntVar(&patchChunkSize, "chunk-size", 0, "New chunk size (drafts only)")

	jobListCmd.Flags().StringVar(&jobItemID, "item", "", "Only lineages of this item")
	jobActivateCmd.Flags().BoolVar(&jobOff, "off", false, "Mark inactive instead")
	jobActivityCmd.Flags().IntVar(&jobLimit, "limit", 20, "Maximum events to show (0 = all)")

	JobCmd.AddCommand(jobDraftCmd)
	JobCmd.AddCommand(jobPublishCmd)
	JobCmd.AddCommand(jobDeployCmd)
	JobCmd.AddCommand(jobResubmitCmd)
	JobCmd.AddCommand(jobUpdateCmd)
	JobCmd.AddCommand(jobShowCmd)
	JobCmd.AddCommand(jobLineageCmd)
	JobCmd.AddCommand(jobListCmd)
	JobCmd.AddCommand(jobRemoveCmd)
	JobCmd.AddCommand(jobBundleCmd)
	JobCmd.AddCommand(jobActivateCmd)
	JobCmd.AddCommand(jobActivityCmd)
}

// printRecord writes rec as JSON or a detail table
func printRecord(cmd *cobra.Command, rec *jobconfig.Record) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rec)
	}
	return display.RenderRecord(cmd.OutOrStdout(), rec)
}

func runJobDraft(cmd *cobra.Command, args []string) error {
	var def lifecycle.Definition
	if err := decodeFile(jobFile, &def); err != nil {
		return err
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.manager.SaveDraft(cmd.Context(), def)
	if err != nil {
		return err
	}
	return printRecord(cmd, rec)
}

func runJobPublish(cmd *cobra.Command, args []string) error {
	var def lifecycle.Definition
	switch {
	case jobID != "":
		def.ID = jobID
	case jobFile != "":
		if err := decodeFile(jobFile, &def); err != nil {
			return err
		}
		if jobLineageID != "" {
			def.ParentID = jobLineageID
		}
	default:
		return errors.New("nothing to publish: pass --id or -f")
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.manager.Publish(cmd.Context(), def)
	if err != nil {
		return err
	}
	return printRecord(cmd, rec)
}

func runJobDeploy(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (jobLineageID == "") {
		return errors.New("pass either a published record id or --lineage")
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	if jobNoSubmit {
		var id string
		if len(args) == 1 {
			id = args[0]
		} else {
			ref, err := s.manager.Reference(ctx, jobLineageID)
			if err != nil {
				return err
			}
			if ref.PublishedID == "" {
				return errors.NewValidationError("lineage %s has no published record", jobLineageID)
			}
			id = ref.PublishedID
		}
		rec, _, err := s.manager.Deploy(ctx, id, "")
		if err != nil {
			return err
		}
		return printRecord(cmd, rec)
	}

	var dep *lifecycle.Deployment
	if len(args) == 1 {
		dep, err = s.manager.DeployAndSubmit(ctx, args[0], "")
	} else {
		dep, err = s.manager.DeployLineage(ctx, jobLineageID, "")
	}
	return printDeployment(cmd, dep, err)
}

func runJobResubmit(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	dep, err := s.manager.Resubmit(cmd.Context(), args[0], "")
	return printDeployment(cmd, dep, err)
}

// printDeployment reports a deploy or resubmit. A submission failure still
// shows the persisted record before returning the error.
func printDeployment(cmd *cobra.Command, dep *lifecycle.Deployment, err error) error {
	if err != nil && (dep == nil || !errors.IsSubmissionError(err)) {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		if jerr := display.OutputJSON(dep); jerr != nil {
			return jerr
		}
		return err
	}

	out := cmd.OutOrStdout()
	if rerr := display.RenderRecord(out, dep.Record); rerr != nil {
		return rerr
	}
	fmt.Fprintf(out, "\nBundle digest: %s\n", dep.Digest)
	if dep.Handle != nil {
		fmt.Fprintf(out, "%s Submitted: %s\n", sym.Scheduler, dep.Handle.RemoteJobID)
	}
	if err != nil {
		fmt.Fprintf(out, "%s Submission failed, retry with: dataloader job resubmit %s\n", sym.Scheduler, dep.Record.ID)
	}
	return err
}

func runJobUpdate(cmd *cobra.Command, args []string) error {
	var patch jobconfig.Patch
	if jobFile != "" {
		if err := decodeFile(jobFile, &patch); err != nil {
			return err
		}
	}
	patchFromFlags(cmd, &patch)

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.manager.UpdateJobConfig(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	return printRecord(cmd, rec)
}

// patchFromFlags overlays explicitly set flags onto patch
func patchFromFlags(cmd *cobra.Command, patch *jobconfig.Patch) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &patchName
	}
	if flags.Changed("description") {
		patch.Description = &patchDescription
	}
	if flags.Changed("severity") {
		patch.Severity = &patchSeverity
	}
	if flags.Changed("impacts") {
		patch.Impacts = &patchImpacts
	}
	if flags.Changed("schedule") {
		patch.ScheduleExpression = &patchSchedule
	}
	if flags.Changed("mapping") {
		patch.MappingID = &patchMappingID
	}
	if flags.Changed("chunk-size") {
		patch.ChunkSize = &patchChunkSize
	}
}

func runJobShow(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.manager.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printRecord(cmd, rec)
}

func runJobLineage(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.manager.Lineage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(records)
	}
	return display.RenderRecords(cmd.OutOrStdout(), records)
}

func runJobList(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	refs, err := s.manager.ListReferences(cmd.Context(), jobItemID)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if refs == nil {
			refs = []*jobconfig.Reference{}
		}
		return display.OutputJSON(refs)
	}
	if len(refs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No job configurations")
		return nil
	}
	return display.RenderReferences(cmd.OutOrStdout(), refs)
}

func runJobRemove(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.manager.DeleteLineage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{"parentId": args[0], "deleted": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted lineage %s (%d records)\n", args[0], removed)
	return nil
}

func runJobBundle(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.manager.Preview(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	digest, err := b.Digest()
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{"bundle": b, "digest": digest})
	}
	raw, err := b.Canonical()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	writeIndentedJSON(out, raw)
	fmt.Fprintf(out, "\nDigest: %s\n", digest)
	return nil
}

// writeIndentedJSON prints canonical bundle bytes in a readable form
func writeIndentedJSON(w io.Writer, raw []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func runJobActivate(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.manager.SetActive(cmd.Context(), args[0], !jobOff, "")
	if err != nil {
		return err
	}
	return printRecord(cmd, rec)
}

func runJobActivity(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.activity.List(cmd.Context(), args[0], jobLimit)
	if err != nil {
		return errors.WrapStore(err, "list activity")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No activity")
		return nil
	}
	return display.RenderEvents(cmd.OutOrStdout(), events)
}
