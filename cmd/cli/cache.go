package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/models"
	"github.com/fedivid/recoserver/internal/recommendations"
	"github.com/fedivid/recoserver/internal/store"
)

var (
	cacheWarmTop   int
	cacheWarmLimit int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the similarity cache",
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute similarity answers for the most popular videos",
	Long: `Run the ANN source with a forced refresh for the top videos by
popularity score, so their related-video answers are already cached when
players request them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := ann.Load(cfg.IndexPath, cfg.EmbeddingDim, cfg.Normalize)
		if err != nil {
			return fmt.Errorf("failed to load ANN index: %w", err)
		}

		source, err := recommendations.NewSource("ann", recommendations.Deps{
			Index: index,
			Store: store.NewStore(database.DB),
			Cache: recommendations.NewSimilarityCache(database.DB),
		}, recommendations.SourceConfig{
			MinSearch:           cacheWarmLimit * 2,
			ExcludeSourceAuthor: true,
		})
		if err != nil {
			return err
		}

		var videos []models.Video
		err = database.DB.
			Where("popularity_score IS NOT NULL").
			Order("popularity_score DESC").
			Limit(cacheWarmTop).
			Find(&videos).Error
		if err != nil {
			return err
		}

		policy := recommendations.CachePolicy{
			Refresh:    true,
			AllowRead:  false,
			AllowWrite: true,
		}

		warmed := 0
		for i := range videos {
			seed := recommendations.SeedVideo{
				Key:  videos[i].Key(),
				UUID: videos[i].UUID,
			}
			if _, err := source.Candidates(seed, cacheWarmLimit, policy); err != nil {
				fmt.Printf("skipping %s: %v\n", videos[i].Key(), err)
				continue
			}
			warmed++
		}

		fmt.Printf("warmed %d of %d videos\n", warmed, len(videos))
		return nil
	},
}

func init() {
	cacheWarmCmd.Flags().IntVar(&cacheWarmTop, "top", 100, "number of most popular videos to warm")
	cacheWarmCmd.Flags().IntVar(&cacheWarmLimit, "limit", 20, "candidates to cache per video")
	cacheCmd.AddCommand(cacheWarmCmd)
}
