package cmd

import "github.com/creativeprojects/imapview/cfg"

type GlobalFlags struct {
	configFile string
	quiet      bool
	verbose    bool
	user       string
}

var (
	global GlobalFlags
	config *cfg.Config
)
