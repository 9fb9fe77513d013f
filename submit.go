package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"skyq/internal/job"
	"skyq/internal/sky"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <descriptor.json>",
		Short: "Run a single job descriptor without the queue",
		Long: "Submits one descriptor file directly: the job is executed and " +
			"the artifact is written next to the current directory. The " +
			"descriptor file is not moved.",
		Args: cobra.ExactArgs(1),
		RunE: runSubmit,
	}

	cmd.Flags().StringP("output-dir", "o", ".", "directory for the downloaded artifact")

	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	outputDir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading descriptor: %w", err)
	}

	var desc job.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("decoding descriptor %s: %w", filepath.Base(args[0]), err)
	}

	store := openSecrets()

	creds, err := sky.LoadCredentials(store)
	if err != nil {
		return err
	}

	tokens, err := newTokenManager(store, creds, logger)
	if err != nil {
		return err
	}

	client := sky.NewClient(cfg.API.BaseURL, nil, tokens, creds, logger)
	ctrl := job.NewController(client, nil, cfg.PollInterval(), cfg.MaxPoll(), logger)

	ctx := shutdownContext(cmd.Context(), logger)

	artifact, jobID, err := ctrl.Run(ctx, &desc, filepath.Base(args[0]), outputDir)
	if err != nil {
		return err
	}

	if artifact == "" {
		statusf("Job %s submitted (asynchronous, no inline result).\n", jobID)
		return nil
	}

	statusf("Job %s completed: %s\n", jobID, artifact)

	return nil
}
