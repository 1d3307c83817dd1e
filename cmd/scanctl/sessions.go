package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/model"
	"cardscan/internal/repository"
	"cardscan/internal/repository/sqlite"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	var (
		dbPath  string
		profile string
		last4   string
		limit   int
		frames  bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List archived scan sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.New(resolveDB(dbPath))
			if err != nil {
				return err
			}
			defer db.Close()

			filter := &model.ScanFilter{Profile: model.Profile(profile), LastFour: last4, Limit: limit}
			var frameRepo repository.FrameRepository
			if frames {
				frameRepo = sqlite.NewFrameRepository(db)
			}
			return listSessions(cmd.OutOrStdout(), sqlite.NewScanRepository(db), frameRepo, filter)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (defaults to DB_PATH)")
	cmd.Flags().StringVar(&profile, "profile", "", "Only sessions of this profile")
	cmd.Flags().StringVar(&last4, "last4", "", "Only sessions that retained a frame with these last four digits")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	cmd.Flags().BoolVar(&frames, "frames", false, "Also list each session's retained frames")

	return cmd
}

func listSessions(w io.Writer, scans repository.ScanRepository, frames repository.FrameRepository, filter *model.ScanFilter) error {
	records, err := scans.GetAll(filter)
	if err != nil {
		return err
	}
	total, err := scans.GetTotalCount(&model.ScanFilter{Profile: filter.Profile, LastFour: filter.LastFour})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tPROFILE\tDURATION\tFRAMES\tSTATUS")
	for _, s := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Profile, s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond), s.FrameCount, s.VerificationStatus)

		if frames == nil {
			continue
		}
		retained, err := frames.GetByScanID(s.ID)
		if err != nil {
			return err
		}
		for _, f := range retained {
			fmt.Fprintf(tw, "  #%d\tframe %d\t%s\tocr=%t\tflash=%t\t%s\n",
				f.Position, f.Sequence, f.CenteredCardState, f.OcrSuccess, f.FlashForcedOn, f.LastFour)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d of %d sessions\n", len(records), total)
	return nil
}

func pruneCmd() *cobra.Command {
	var (
		dbPath    string
		frameDir  string
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived sessions and their images older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg := config.Load()
			if frameDir == "" {
				frameDir = cfg.FrameDirectory
			}

			db, err := sqlite.New(resolveDB(dbPath))
			if err != nil {
				return err
			}
			defer db.Close()

			cutoff := time.Now().Add(-olderThan)
			n, err := prune(cmd.OutOrStdout(), sqlite.NewScanRepository(db), frameDir, cutoff, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sessions pruned\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (defaults to DB_PATH)")
	cmd.Flags().StringVar(&frameDir, "frames", "", "Frame directory (defaults to FRAME_DIR)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Prune sessions started before now minus this duration")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be deleted")

	return cmd
}

func prune(w io.Writer, scans repository.ScanRepository, frameDir string, cutoff time.Time, dryRun bool) (int, error) {
	old, err := scans.GetAll(&model.ScanFilter{EndDate: cutoff})
	if err != nil {
		return 0, err
	}

	for _, s := range old {
		fmt.Fprintf(w, "%s %s\n", s.ID, s.StartedAt.Local().Format(time.RFC3339))
		if dryRun {
			continue
		}
		if err := scans.Delete(s.ID); err != nil {
			return 0, err
		}
		if !model.SafeSessionID(s.ID) {
			continue
		}
		dir := filepath.Join(frameDir, s.ID)
		if err := os.RemoveAll(dir); err != nil {
			fmt.Fprintf(w, "  could not remove %s: %v\n", dir, err)
		}
	}
	return len(old), nil
}

func resolveDB(path string) string {
	if path != "" {
		return path
	}
	return config.Load().DatabasePath
}
