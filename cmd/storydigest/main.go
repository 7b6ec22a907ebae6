package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storydigest",
		Short: "Personalized solutions-story newsletter: scrape, select and send",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scrapeCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(subscribeCmd())
	root.AddCommand(unsubscribeCmd())
	root.AddCommand(settingsCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func scrapeCmd() *cobra.Command {
	var topics []string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Collect fresh articles from all sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(topics)
		},
	}

	cmd.Flags().StringSliceVar(&topics, "topic", nil, "limit scraping to specific topics")
	return cmd
}

func sendCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a newsletter campaign for all active subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(kind)
		},
	}

	cmd.Flags().StringVar(&kind, "type", "manual", "campaign type recorded in the campaign log")
	return cmd
}

func previewCmd() *cobra.Command {
	var (
		email string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a subscriber's next newsletter without recording sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(email, out)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "subscriber email (required)")
	cmd.Flags().StringVar(&out, "out", "", "write HTML to file instead of stdout")
	cmd.MarkFlagRequired("email")
	return cmd
}

func subscribeCmd() *cobra.Command {
	var (
		email  string
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Add or update a subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(email, topics)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "subscriber email (required)")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "exactly three distinct topics")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("topics")
	return cmd
}

func unsubscribeCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Deactivate a subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnsubscribe(email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "subscriber email (required)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change admin settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(args[0], args[1])
		},
	})

	return cmd
}

func pruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old articles that were never sent to anyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default: from config)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
