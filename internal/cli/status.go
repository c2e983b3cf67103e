package cli

import (
	"context"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/storage"
)

// statusRow is one line of the status table.
type statusRow struct {
	ID        string
	MediaName string
	Strategy  string
	Enabled   bool
	LastUnit  string
	UpdatedAt string
	Articles  int64
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-source checkpoints and stored article counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			rows, err := collectStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func collectStatus(ctx context.Context, cfg *config.Config) ([]statusRow, error) {
	cps, err := checkpoint.New(cfg.Engine)
	if err != nil {
		return nil, err
	}

	// A down database still leaves the checkpoint side of the table useful.
	counts := map[string]int64{}
	if store, err := storage.NewPostgresStore(cfg.Engine.PostgresURL); err == nil {
		defer store.Close()
		if c, err := store.CountByMedia(ctx); err == nil {
			counts = c
		}
	}

	rows := make([]statusRow, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		row := statusRow{
			ID:        src.ID,
			MediaName: src.MediaName,
			Strategy:  src.Strategy,
			Enabled:   src.Enabled,
			Articles:  counts[src.MediaName],
		}
		cp, ok, err := cps.Load(ctx, src.ID)
		if err != nil {
			row.LastUnit = "(unreadable)"
		} else if ok {
			row.LastUnit = cp.LastKey
			row.UpdatedAt = cp.UpdatedAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func renderStatus(w io.Writer, rows []statusRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Media", "Strategy", "Enabled", "Last Unit", "Checkpointed At", "Articles"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.ID, r.MediaName, r.Strategy, r.Enabled, r.LastUnit, r.UpdatedAt, r.Articles})
	}
	t.Render()
}
