package main

import (
	"time"

	"github.com/spf13/cobra"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags hold the daemon connection settings for client commands.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// CreateFlags holds flags for the create command.
type CreateFlags struct {
	Name    string
	Region  string
	Command string
	WorkDir string
	Client  ClientFlags
}

// SessionFlags holds flags for commands addressing one session.
type SessionFlags struct {
	ActiveOnly bool
	Client     ClientFlags
}

// LogsFlags holds flags for the log commands.
type LogsFlags struct {
	Limit  int
	Client ClientFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen string
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8553/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
