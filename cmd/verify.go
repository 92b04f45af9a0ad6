package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/facade"
	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/utils"
)

func newVerifyCmd() *cobra.Command {
	var (
		algorithm      string
		expectedSum    string
		generateReport bool
	)

	cmd := &cobra.Command{
		Use:   "verify [FILE_PATH]",
		Short: "Compute and optionally check a file's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			env := a.facade.VerifyIntegrity(facade.VerifyIntegrityParams{
				FilePath:         args[0],
				Algorithm:        model.Algorithm(algorithm),
				ExpectedChecksum: expectedSum,
				GenerateReport:   generateReport,
			})
			if !env.Success {
				utils.PrintError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message))
				os.Exit(1)
			}
			result := env.Data.(facade.VerifyIntegrityResult)
			fmt.Printf("%s  %s\n", result.Algorithm, result.Checksum)
			if expectedSum != "" {
				if result.Verified {
					utils.PrintSuccess("checksum matches")
				} else {
					utils.PrintError("checksum mismatch")
					os.Exit(1)
				}
			}
			if result.Report != "" {
				fmt.Println(result.Report)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", string(model.AlgorithmSHA256), "md5|sha1|sha256|sha512")
	cmd.Flags().StringVar(&expectedSum, "expected", "", "Expected checksum to verify against")
	cmd.Flags().BoolVar(&generateReport, "report", false, "Print a human-readable verification report")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate task counts and bytes downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			env := a.facade.GetStats()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(env.Data)
			}
			result := env.Data.(facade.StatsResult)
			fmt.Printf("total: %d  active: %d  bytes: %d\n", result.TotalTasks, result.ActiveDownloads, result.TotalBytes)
			for status, count := range result.ByStatus {
				fmt.Printf("  %-12s %d\n", status, count)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a summary")
	return cmd
}
