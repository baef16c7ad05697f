// Command qualtrics-sync marks recently stored interviews complete in the
// survey. Run it on a schedule, hours after the interviews, so that
// Qualtrics has processed the responses.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MikeSquared-Agency/interviewer/internal/config"
	"github.com/MikeSquared-Agency/interviewer/internal/drive"
	"github.com/MikeSquared-Agency/interviewer/internal/logging"
	"github.com/MikeSquared-Agency/interviewer/internal/qualtrics"
)

var rootCmd = &cobra.Command{
	Use:   "qualtrics-sync",
	Short: "Mark stored interview transcripts complete in Qualtrics",
	Long: `qualtrics-sync lists transcripts uploaded to the Drive folder in the
lookback window, extracts the Qualtrics response id from each filename and
sets ChatbotCompleted=1 on the response.`,
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.Int("lookback-days", 7, "Process transcripts modified in the last N days")
	flags.Duration("delay", 2*time.Second, "Pause between API calls; also the retry backoff base")
	flags.Int("retries", 3, "Retry attempts for failed API calls")
	flags.Bool("dry-run", false, "List what would be updated without calling Qualtrics")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
	// --lookback-days can also come from LOOKBACK_DAYS, and so on.
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := checkConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := drive.NewClient(ctx, cfg.DriveFolderID, cfg.DriveCredentialsFile, cfg.DriveCredentialsJSON, logger)
	if err != nil {
		return err
	}
	qc := qualtrics.NewClient(cfg.QualtricsAPIToken, cfg.QualtricsSurveyID, cfg.QualtricsDatacenter, logger)

	opts := qualtrics.BatchOptions{
		Lookback: time.Duration(viper.GetInt("lookback-days")) * 24 * time.Hour,
		Delay:    viper.GetDuration("delay"),
		Retries:  viper.GetInt("retries"),
		DryRun:   viper.GetBool("dry-run"),
	}
	slog.Info("starting batch qualtrics update",
		"lookback", opts.Lookback, "delay", opts.Delay, "retries", opts.Retries, "dry_run", opts.DryRun)

	sum, err := qualtrics.NewBatch(src, qc, opts, logger).Run(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), sum)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d responses failed", sum.Failed)
	}
	return nil
}

func checkConfig(cfg config.Config) error {
	var errs []error
	if !cfg.QualtricsEnabled() {
		errs = append(errs, fmt.Errorf("%w: QUALTRICS_API_TOKEN, QUALTRICS_SURVEY_ID, QUALTRICS_DATACENTER", config.ErrMissing))
	}
	if !cfg.DriveEnabled() {
		errs = append(errs, fmt.Errorf("%w: DRIVE_FOLDER_ID", config.ErrMissing))
	} else if cfg.DriveCredentialsFile == "" && cfg.DriveCredentialsJSON == "" {
		errs = append(errs, fmt.Errorf("%w: DRIVE_CREDENTIALS_FILE or DRIVE_CREDENTIALS_JSON", config.ErrMissing))
	}
	return errors.Join(errs...)
}
