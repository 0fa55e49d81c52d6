package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/okian/highscore/internal/loadtest"
	"github.com/okian/highscore/pkg/logger"
)

var loadConfig loadtest.Config

// loadCmd runs a verifying load against the service
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Submit a generated workload and verify the leaderboards",
	Long: `Submit random scores from a pool of players across a set of games,
then read back the daily game leaderboards and check that they are sorted,
ranked without gaps and headed by the best submitted score.`,
	Example: `  scorectl load
  scorectl load --submissions 50000 --players 1000 --games 20 --workers 32`,
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	loadConfig.BaseURL = baseURL
	loadConfig.Timeout = timeout

	r := loadtest.NewRunner(loadConfig,
		loadtest.WithLogger(logger.Named("loadtest")),
		loadtest.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	rep, err := r.Run(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), loadtest.RenderStats(rep.Stats))
	if err != nil {
		return err
	}
	for _, b := range rep.Boards {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), loadtest.RenderTable(b))
	}
	return nil
}

func init() {
	f := loadCmd.Flags()
	f.IntVar(&loadConfig.Submissions, "submissions", loadtest.DefaultSubmissions, "Number of scores to submit")
	f.IntVar(&loadConfig.Players, "players", loadtest.DefaultPlayers, "Number of distinct players")
	f.IntVar(&loadConfig.Games, "games", loadtest.DefaultGames, "Number of distinct games")
	f.IntVarP(&loadConfig.Workers, "workers", "w", 0, "Concurrent submitters (default CPU cores * 2)")
	f.IntVar(&loadConfig.PersonalLimit, "personal-limit", loadtest.DefaultPersonalLimit, "personal_limit configured on the server")
	f.BoolVarP(&loadConfig.Verbose, "verbose", "v", false, "Log every failed submission")
}
