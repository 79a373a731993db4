package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/shotdeck/internal/config"
	"github.com/yourorg/shotdeck/internal/usage"
	"github.com/yourorg/shotdeck/pkg/types"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var batch string
	cmd := &cobra.Command{Use: "list", Short: "List recorded runs", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd.Context(), flags)
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.store.ListRuns(cmd.Context(), batch)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRODUCT\tMODE\tSTATUS\tIMAGES\tFAILED\tCOST\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\n",
				r.ID, r.BatchID, r.Mode, r.Status, r.ImagesGenerated, r.Failed, r.CostUSD,
				r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}}
	cmd.Flags().StringVar(&batch, "product", "", "only runs of this product")
	return cmd
}

func newShowCmd(flags *rootFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{Use: "show", Short: "Show run details", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd.Context(), flags)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		run, err := e.store.GetRun(ctx, id)
		if err != nil {
			return err
		}
		outcomes, err := e.store.GetOutcomes(ctx, id)
		if err != nil {
			return err
		}
		stages, err := e.store.GetStages(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s\n  product: %s\n  mode:    %s\n  status:  %s\n  main:    %s\n  output:  %s\n\n",
			run.ID, run.BatchID, run.Mode, run.Status, run.MainImage, run.OutputDir)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tIMAGES\tERROR")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", o.Index, o.Label, len(o.ArtifactPaths), o.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return writeStages(out, stages)
	}}
	cmd.Flags().StringVar(&id, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{Use: "delete", Short: "Delete a recorded run", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd.Context(), flags)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.DeleteRun(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
		return nil
	}}
	cmd.Flags().StringVar(&id, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

// newCostCmd projects a saved usage record onto the pricing table. The
// input is a JSON usage object, or a run report whose stages are priced
// one by one.
func newCostCmd(flags *rootFlags) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "cost <usage.json>",
		Short: "Estimate the cost of a usage record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			stages, err := parseUsage(data, model, cfg)
			if err != nil {
				return err
			}
			return writeStages(cmd.OutOrStdout(), stages)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to price against (default: the record's model)")
	return cmd
}

func parseUsage(data []byte, model string, cfg *config.Config) ([]types.StageUsage, error) {
	pricing := cfg.PricingTable()

	var report types.RunReport
	if err := json.Unmarshal(data, &report); err == nil && len(report.Stages) > 0 {
		out := make([]types.StageUsage, 0, len(report.Stages))
		for _, s := range report.Stages {
			m := model
			if m == "" {
				m = s.Model
			}
			s.Cost = usage.Cost(s.Usage, pricing, m)
			out = append(out, s)
		}
		return out, nil
	}

	var u types.Usage
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse usage: %w", err)
	}
	if model == "" {
		model = u.Model
	}
	return []types.StageUsage{{Stage: "total", Model: model, Usage: u, Cost: usage.Cost(u, pricing, model)}}, nil
}

func writeStages(out io.Writer, stages []types.StageUsage) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tMODEL\tPRICED AS\tIN TOKENS\tOUT TOKENS\tIMAGES\tINPUT\tOUTPUT\tTOTAL")
	var total float64
	for _, s := range stages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t$%.6f\t$%.6f\t$%.6f\n",
			s.Stage, s.Model, s.Cost.Model,
			s.Usage.PromptTokens, s.Usage.CompletionTokens, s.Usage.OutputArtifactCount,
			s.Cost.Input.Subtotal, s.Cost.Output.Subtotal, s.Cost.Total)
		total += s.Cost.Total
	}
	fmt.Fprintf(w, "\t\t\t\t\t\t\t\t$%.6f\n", total)
	return w.Flush()
}
