package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/display"
	"github.com/teranos/dataloader/sym"
)

// ResourceCmd represents the resource command
var ResourceCmd = &cobra.Command{
	Use:   "resource",
	Short: sym.Resource + " Manage the connection catalog",
	Long: sym.Resource + ` resource — Connection catalog

Resources are the sources and targets job configurations read from and
write to. A job's source and target fragments reference them by id, and
deploying a job copies their configuration into the bundle.

Examples:
  dataloader resource add -f orders-db.yaml
  dataloader resource ls
  dataloader resource show orders-db
  dataloader resource rm orders-db`,
}

var resourceAddCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"put"},
	Short:   "Create or replace a resource",
	Args:    cobra.NoArgs,
	RunE:    runResourceAdd,
}

var resourceListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List resources",
	Args:    cobra.NoArgs,
	RunE:    runResourceList,
}

var resourceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runResourceShow,
}

var resourceRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a resource",
	Args:    cobra.ExactArgs(1),
	RunE:    runResourceRemove,
}

var resourceFile string

func init() {
	resourceAddCmd.Flags().StringVarP(&resourceFile, "file", "f", "", "Resource file (.yaml, .json, .toml, or - for stdin)")

	ResourceCmd.AddCommand(resourceAddCmd)
	ResourceCmd.AddCommand(resourceListCmd)
	ResourceCmd.AddCommand(resourceShowCmd)
	ResourceCmd.AddCommand(resourceRemoveCmd)
}

func runResourceAdd(cmd *cobra.Command, args []string) error {
	var res catalog.Resource
	if err := decodeFile(resourceFile, &res); err != nil {
		return err
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.catalog.PutResource(cmd.Context(), &res); err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s Saved resource %s (%s)\n", sym.Resource, res.ID, res.Type)
	return nil
}

func runResourceList(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	resources, err := s.catalog.ListResources(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if resources == nil {
			resources = []*catalog.Resource{}
		}
		return display.OutputJSON(resources)
	}
	if len(resources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No resources")
		return nil
	}
	return display.RenderResources(cmd.OutOrStdout(), resources)
}

func runResourceShow(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.catalog.GetResource(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(res)
	}
	if err := display.RenderResources(cmd.OutOrStdout(), []*catalog.Resource{res}); err != nil {
		return err
	}
	if len(res.Configuration) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		return display.WriteJSON(cmd.OutOrStdout(), res.Configuration)
	}
	return nil
}

func runResourceRemove(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.catalog.DeleteResource(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted resource %s\n", args[0])
	return nil
}
