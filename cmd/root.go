package cmd

import (
	"os"

	"github.com/creativeprojects/imapview/cfg"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "imapview",
	Short: "Present folders of a content repository as IMAP mailboxes",
	Long:  "\nPresent folders of a content repository as IMAP mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	cobra.OnInitialize(initConfig, initLog)
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", "imapview.yaml", "configuration file")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display debugging information")
	flag.StringVarP(&global.user, "user", "u", "admin", "user the mailboxes belong to")
}

func initConfig() {
	var err error
	config, err = cfg.LoadFromFile(global.configFile)
	if err != nil {
		term.Errorf("cannot open or read configuration file: %s", err)
		os.Exit(1)
	}
}

func initLog() {
	switch {
	case global.verbose:
		term.SetLevel(term.LevelDebug)
	case global.quiet:
		term.SetLevel(term.LevelWarn)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		term.Error(err)
		os.Exit(1)
	}
}
