package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/display"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/scheduler"
	"github.com/teranos/dataloader/sym"
)

// QueueCmd represents the queue command
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: sym.Scheduler + " Inspect the local scheduler queue",
	Long: sym.Scheduler + ` queue — Local scheduler queue

With scheduler.mode = "local", deployed bundles are queued in the store for a
co-located runtime. Resubmitting a deployed record retires its earlier
queue entries.

Examples:
  dataloader queue ls                   # Every queued deployment
  dataloader queue ls --state active    # Only active ones
  dataloader queue pause <deployment-id>
  dataloader queue resume <deployment-id>`,
}

var queueListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List queued deployments",
	Args:    cobra.NoArgs,
	RunE:    runQueueList,
}

var queuePauseCmd = &cobra.Command{
	Use:   "pause <deployment-id>",
	Short: "Pause a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  queueStateSetter(scheduler.StatePaused),
}

var queueResumeCmd = &cobra.Command{
	Use:   "resume <deployment-id>",
	Short: "Resume a paused deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  queueStateSetter(scheduler.StateActive),
}

var queueStopCmd = &cobra.Command{
	Use:   "stop <deployment-id>",
	Short: "Retire a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  queueStateSetter(scheduler.StateInactive),
}

var queueState string

func init() {
	queueListCmd.Flags().StringVar(&queueState, "state", "", "Only deployments in this state (active, paused, inactive)")

	QueueCmd.AddCommand(queueListCmd)
	QueueCmd.AddCommand(queuePauseCmd)
	QueueCmd.AddCommand(queueResumeCmd)
	QueueCmd.AddCommand(queueStopCmd)
}

// openQueue opens the stack and returns its gateway if it is the local queue
func openQueue() (*stack, *scheduler.LocalGateway, error) {
	s, err := openStack()
	if err != nil {
		return nil, nil, err
	}
	local, ok := s.gateway.(*scheduler.LocalGateway)
	if !ok {
		s.Close()
		return nil, nil, errors.Newf("scheduler mode is %q; the queue only exists in local mode", s.cfg.Scheduler.Mode)
	}
	return s, local, nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	s, queue, err := openQueue()
	if err != nil {
		return err
	}
	defer s.Close()

	deployments, err := queue.List(cmd.Context(), queueState)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if deployments == nil {
			deployments = []*scheduler.Deployment{}
		}
		return display.OutputJSON(deployments)
	}
	if len(deployments) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
		return nil
	}
	return display.RenderDeployments(cmd.OutOrStdout(), deployments)
}

func queueStateSetter(state string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, queue, err := openQueue()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := queue.UpdateState(cmd.Context(), args[0], state); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s Deployment %s is now %s\n", sym.Scheduler, args[0], state)
		return nil
	}
}
