package main

import (
	"fmt"
	"os"
	"time"

	"github.com/maloquacious/catscrape/internal/downloader"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

// flags shared by every command
var (
	rootDir    string
	dataDir    string
	outputDir  string
	storage    string
	mongoURI   string
	mongoDB    string
	apiBase    string
	cdnBase    string
	rate       float64
	verbose    bool
	shutdownTO time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "catscrape",
		Short:         "Catalogue archive tracker and incremental page downloader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootDir, "root", ".", "folder holding the catalogue and data folders")
	pf.StringVar(&dataDir, "data-dir", store.DefaultDataDir, "tracking data folder, relative to --root")
	pf.StringVar(&outputDir, "output", "catalogues", "catalogue image folder, relative to --root")
	pf.StringVar(&storage, "storage", string(store.KindCSV), "tracking store: csv, json, sqlite or mongo")
	pf.StringVar(&mongoURI, "mongo-uri", os.Getenv("CATSCRAPE_MONGO_URI"), "MongoDB connection string (env CATSCRAPE_MONGO_URI)")
	pf.StringVar(&mongoDB, "mongo-db", "", "MongoDB database name")
	pf.StringVar(&apiBase, "api-base", downloader.DefaultAPIBase, "catalogue archive API endpoint")
	pf.StringVar(&cdnBase, "cdn-base", downloader.DefaultCDNBase, "page image CDN base URL")
	pf.Float64Var(&rate, "rate", 0, "maximum requests per second, 0 for no pacing")
	pf.BoolVar(&verbose, "verbose", false, "debug logging, echoed to stderr")
	pf.DurationVar(&shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newBackupCmd(),
		newServeCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				if buildDate != "" {
					fmt.Printf("catscrape %s (built %s)\n", version.String(), buildDate)
					return
				}
				fmt.Printf("catscrape %s\n", version.String())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
