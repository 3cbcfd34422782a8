package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/recommendations"
)

var popularityFull bool

var popularityCmd = &cobra.Command{
	Use:   "popularity",
	Short: "Manage popularity scores",
}

var popularityRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute stored popularity scores",
	Long: `Recompute popularity scores for videos. By default only rows that
were never scored are touched; --full rescores everything, which is the
periodic maintenance mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job := recommendations.NewPopularityJob(database.DB, cfg.PopularityLikeWeight, time.Now)

		var (
			touched int64
			err     error
		)
		if popularityFull {
			touched, err = job.RecomputeAll(context.Background())
		} else {
			touched, err = job.RecomputeUnscored(context.Background())
		}
		if err != nil {
			return err
		}

		fmt.Printf("rescored %d videos\n", touched)
		return nil
	},
}

func init() {
	popularityRecomputeCmd.Flags().BoolVar(&popularityFull, "full", false, "rescore every video, not just unscored rows")
	popularityCmd.AddCommand(popularityRecomputeCmd)
}
