package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/okian/highscore/internal/loadtest"
)

var tableQuery loadtest.TableQuery

// tableCmd prints one leaderboard
var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print a leaderboard",
	Long: `Print the game or personal leaderboard of one period.
A personal leaderboard needs --player as well as --game.`,
	Example: `  scorectl table --game some_game
  scorectl lb --game some_game --period weekly
  scorectl lb --game some_game --scope personal --player some_player`,
	Aliases: []string{"lb", "top"},
	RunE:    runTable,
}

func runTable(cmd *cobra.Command, args []string) error {
	if tableQuery.GameID == "" {
		return fmt.Errorf("--game is required")
	}
	client := loadtest.NewClient(baseURL, &http.Client{Timeout: timeout})
	t, err := client.Leaderboard(cmd.Context(), tableQuery)
	if err != nil {
		return fmt.Errorf("error fetching leaderboard: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), loadtest.RenderTable(t))
	return nil
}

func init() {
	tableCmd.Flags().StringVarP(&tableQuery.GameID, "game", "g", "", "Game id")
	tableCmd.Flags().StringVarP(&tableQuery.PlayerID, "player", "p", "", "Player id for a personal leaderboard")
	tableCmd.Flags().StringVarP(&tableQuery.Scope, "scope", "s", "game", "Leaderboard scope (game or personal)")
	tableCmd.Flags().StringVar(&tableQuery.Period, "period", "daily", "Period (daily, weekly or monthly)")
	tableCmd.Flags().IntVarP(&tableQuery.Limit, "limit", "n", 0, "Maximum number of entries")
}
