package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/fedivid/recoserver/internal/ann"
	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/models"
)

var indexOut string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the ANN index snapshot",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an index snapshot from stored embeddings",
	Long: `Read every video embedding from the database and write the JSONL
snapshot the server loads at startup. Run after bulk embedding imports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := indexOut
		if out == "" {
			out = cfg.IndexPath
		}

		ix := ann.NewIndex(cfg.EmbeddingDim, cfg.Normalize)

		var count int64
		rows := make([]models.VideoEmbedding, 0, 500)
		err := database.DB.Where("dim = ?", cfg.EmbeddingDim).
			FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
				for i := range rows {
					if err := ix.Add(rows[i].Key(), rows[i].Vector); err != nil {
						return fmt.Errorf("embedding %s: %w", rows[i].Key(), err)
					}
					count++
				}
				return nil
			}).Error
		if err != nil {
			return err
		}

		if err := ix.Save(out); err != nil {
			return err
		}
		fmt.Printf("wrote %d vectors to %s\n", count, out)
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().StringVar(&indexOut, "out", "", "snapshot path (defaults to ANN_INDEX_PATH)")
	indexCmd.AddCommand(indexBuildCmd)
}
