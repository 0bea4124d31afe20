// groupctl is a demonstration CLI over the group allocation core: it reads
// View and Policy fixtures from YAML and prints the resulting Layout as
// JSON. It opens no network ports and owns no durable state -- it exists to
// exercise GroupAdmin and the Cross-Product Allocator from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"groupcore/core"
)

func main() {
	rootCmd := &cobra.Command{Use: "groupctl"}
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(crossProductCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func viewCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "view"}
	cmd.AddCommand(viewComputeCmd())
	return cmd
}

func viewComputeCmd() *cobra.Command {
	var viewPath, policyPath, typeTag string
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "compute a Layout for one replicated type against a View fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()

			view, err := loadViewFixture(viewPath)
			if err != nil {
				return fmt.Errorf("load view: %w", err)
			}
			policy, err := loadPolicyFixture(policyPath)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}

			ga := core.NewGroupAdmin(policy, log)
			layout, err := ga.Compute(typeTag, view)
			if err != nil {
				return fmt.Errorf("compute layout: %w", err)
			}
			return printJSON(layout)
		},
	}
	cmd.Flags().StringVar(&viewPath, "view", "", "path to a view fixture YAML file")
	cmd.Flags().StringVar(&policyPath, "policy", "", "path to a policy fixture YAML file")
	cmd.Flags().StringVar(&typeTag, "type", "", "replicated type tag to compute a layout for")
	cmd.MarkFlagRequired("view")
	cmd.MarkFlagRequired("policy")
	cmd.MarkFlagRequired("type")
	return cmd
}

func crossProductCmd() *cobra.Command {
	var viewPath, policyPath, sourceType, targetType string
	var sourceSubgroup, targetSubgroup int
	cmd := &cobra.Command{
		Use:   "crossproduct",
		Short: "compute the derived N x M subgroups between a source and target type",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()

			view, err := loadViewFixture(viewPath)
			if err != nil {
				return fmt.Errorf("load view: %w", err)
			}
			policy, err := loadPolicyFixture(policyPath)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}

			ga := core.NewGroupAdmin(policy, log)
			sourceLayout, err := ga.Compute(sourceType, view)
			if err != nil {
				return fmt.Errorf("compute source layout: %w", err)
			}
			targetLayout, err := ga.Compute(targetType, view)
			if err != nil {
				return fmt.Errorf("compute target layout: %w", err)
			}

			cp, err := core.CrossProductAllocate(view, sourceLayout, targetLayout, sourceSubgroup, targetSubgroup)
			if err != nil {
				return fmt.Errorf("cross product: %w", err)
			}
			return printJSON(cp.Subgroups)
		},
	}
	cmd.Flags().StringVar(&viewPath, "view", "", "path to a view fixture YAML file")
	cmd.Flags().StringVar(&policyPath, "policy", "", "path to a policy fixture YAML file")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "source replicated type tag")
	cmd.Flags().StringVar(&targetType, "target-type", "", "target replicated type tag")
	cmd.Flags().IntVar(&sourceSubgroup, "source-subgroup", 0, "source subgroup index")
	cmd.Flags().IntVar(&targetSubgroup, "target-subgroup", 0, "target subgroup index")
	cmd.MarkFlagRequired("view")
	cmd.MarkFlagRequired("policy")
	cmd.MarkFlagRequired("source-type")
	cmd.MarkFlagRequired("target-type")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
