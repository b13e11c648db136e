package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/opportunity"
)

var (
	scanUser  string
	scanLabel string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a source for candidate projects",
}

var scanTextCmd = &cobra.Command{
	Use:   "text [file]",
	Short: "Extract project URLs from a text file (or stdin) and create opportunities",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return eris.Wrap(err, "read scan input")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Orchestrator.ScanText(ctx, scanUser, string(data), scanLabel)
		if err != nil {
			return err
		}
		return printScanResult(cmd.OutOrStdout(), res)
	},
}

var scanPageCmd = &cobra.Command{
	Use:   "page <url>",
	Short: "Scan a page (directory, launchpad, blog) for candidate projects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Orchestrator.ScanPage(ctx, scanUser, args[0], scanLabel)
		if err != nil {
			return err
		}
		return printScanResult(cmd.OutOrStdout(), res)
	},
}

var scanWatchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Scan every watchlist entry for new candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Orchestrator.ScanWatchlist(ctx, scanUser)
		if err != nil {
			return err
		}
		return printScanResult(cmd.OutOrStdout(), res)
	},
}

func printScanResult(w io.Writer, res *opportunity.ScanResult) error {
	zap.L().Info("scan complete",
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	scanCmd.PersistentFlags().StringVarP(&scanUser, "user", "u", "local", "user id owning the scan results")
	scanCmd.PersistentFlags().StringVarP(&scanLabel, "label", "l", "", "source label recorded on created opportunities")
	scanCmd.AddCommand(scanTextCmd, scanPageCmd, scanWatchlistCmd)
	rootCmd.AddCommand(scanCmd)
}
