// fdctl：食物荒漠服务的管理命令（路网导入、覆盖区查看、预热、清空）
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"food-desert/internal/config"
	"food-desert/internal/logger"
)

var (
	cfg config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fdctl",
	Short: "Food desert service administration",
	Long: `fdctl manages the data behind the food desert service.

Examples:
  fdctl import-network roads.geojson --db data/network.db
  fdctl coverage
  fdctl warm --lng0 -74.02 --lng1 -73.93 --lat0 40.70 --lat1 40.80
  fdctl check --lng -73.99 --lat 40.73
  fdctl truncate --yes`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotenv()
		log = logger.Setup()
		cfg = config.FromEnv()
	},
}

func init() {
	rootCmd.AddCommand(importNetworkCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(truncateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
