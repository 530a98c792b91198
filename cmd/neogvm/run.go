/*
 * @author: sun977
 * @date: 2025.11.10
 * @description: 手动执行流水线阶段
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"neogvm/internal/app/neogvm/setup"
	"neogvm/internal/service/pipeline"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:       "run <stage>",
	Short:     "执行一次流水线阶段",
	Long:      "执行一次指定的阶段后退出，可选: " + strings.Join(append(append([]string{}, pipeline.Stages...), pipeline.StageAll), ", "),
	Example:   "  neogvm run ids\n  neogvm run all",
	Args:      cobra.ExactArgs(1),
	ValidArgs: append(append([]string{}, pipeline.Stages...), pipeline.StageAll),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage := args[0]
		if !pipeline.IsStage(stage) {
			return fmt.Errorf("unknown stage %q", stage)
		}

		cfg, err := loadRuntime()
		if err != nil {
			return err
		}
		core, err := setup.BuildCoreModule(cfg)
		if err != nil {
			return err
		}
		defer core.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, runErr := core.PipelineService.RunStage(ctx, stage)
		if err := renderResults(results); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func renderResults(results []*pipeline.StageResult) error {
	if len(results) == 0 {
		return nil
	}
	tableData := pterm.TableData{{"Stage", "Processed", "Skipped", "Failed", "Duration", "Error"}}
	for _, r := range results {
		if r == nil {
			continue
		}
		tableData = append(tableData, []string{
			r.Stage,
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Millisecond).String(),
			r.Error,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(tableData).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
