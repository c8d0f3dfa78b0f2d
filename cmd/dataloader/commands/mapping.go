package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/display"
	"github.com/teranos/dataloader/sym"
)

// MappingCmd represents the mapping command
var MappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: sym.Mapping + " Manage field mappings",
	Long: sym.Mapping + ` mapping — Field mappings

A mapping lists which source column lands in which target column. Job
configurations reference a mapping by id; deploying a job embeds its fields
in the bundle.

Examples:
  dataloader mapping add -f orders-map.yaml
  dataloader mapping ls
  dataloader mapping show orders-map`,
}

var mappingAddCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"put"},
	Short:   "Create or replace a mapping",
	Args:    cobra.NoArgs,
	RunE:    runMappingAdd,
}

var mappingListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List mappings",
	Args:    cobra.NoArgs,
	RunE:    runMappingList,
}

var mappingShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a mapping and its fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingShow,
}

var mappingRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a mapping",
	Args:    cobra.ExactArgs(1),
	RunE:    runMappingRemove,
}

var mappingFile string

func init() {
	mappingAddCmd.Flags().StringVarP(&mappingFile, "file", "f", "", "Mapping file (.yaml, .json, .toml, or - for stdin)")

	MappingCmd.AddCommand(mappingAddCmd)
	MappingCmd.AddCommand(mappingListCmd)
	MappingCmd.AddCommand(mappingShowCmd)
	MappingCmd.AddCommand(mappingRemoveCmd)
}

func runMappingAdd(cmd *cobra.Command, args []string) error {
	var m catalog.Mapping
	if err := decodeFile(mappingFile, &m); err != nil {
		return err
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.catalog.PutMapping(cmd.Context(), &m); err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s Saved mapping %s (%d fields)\n", sym.Mapping, m.ID, len(m.Fields))
	return nil
}

func runMappingList(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	mappings, err := s.catalog.ListMappings(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if mappings == nil {
			mappings = []*catalog.Mapping{}
		}
		return display.OutputJSON(mappings)
	}
	if len(mappings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No mappings")
		return nil
	}
	return display.RenderMappings(cmd.OutOrStdout(), mappings)
}

func runMappingShow(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.catalog.GetMapping(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n\n", sym.Mapping, m.Name, m.ID)
	return display.RenderMappingFields(cmd.OutOrStdout(), m)
}

func runMappingRemove(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.catalog.DeleteMapping(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted mapping %s\n", args[0])
	return nil
}
