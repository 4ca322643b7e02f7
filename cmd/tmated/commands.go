package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ormanaq/tmate/pkg/client"
)

// apiClient builds a client for the daemon, verifying reachability first.
func apiClient(f ClientFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	c := client.New(cfg)
	if !c.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'tmated serve'", cfg.BaseURL)
	}
	return c, nil
}

func runCreate(f CreateFlags) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	sess, err := c.CreateSession(context.Background(), client.CreateRequest{
		Name:    f.Name,
		Region:  f.Region,
		Command: f.Command,
		WorkDir: f.WorkDir,
	})
	if err != nil {
		return err
	}
	printJSON(sess)
	return nil
}

func runList(f SessionFlags) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	var sessions []client.Session
	if f.ActiveOnly {
		sessions, err = c.ListActiveSessions(context.Background())
	} else {
		sessions, err = c.ListSessions(context.Background())
	}
	if err != nil {
		return err
	}
	printJSON(sessions)
	return nil
}

func runGet(f SessionFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	sess, err := c.GetSession(context.Background(), id)
	if err != nil {
		return err
	}
	printJSON(sess)
	return nil
}

func runStop(f SessionFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	sess, err := c.StopSession(context.Background(), id)
	if err != nil {
		return err
	}
	printJSON(sess)
	return nil
}

func runRestart(f SessionFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	sess, err := c.RestartSession(context.Background(), id)
	if err != nil {
		return err
	}
	printJSON(sess)
	return nil
}

func runDelete(f SessionFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	if err := c.DeleteSession(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("deleted", id)
	return nil
}

func runLogs(f LogsFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	logs, err := c.SessionLogs(context.Background(), id)
	if err != nil {
		return err
	}
	printJSON(logs)
	return nil
}

func runRecent(f LogsFlags) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	logs, err := c.RecentLogs(context.Background(), f.Limit)
	if err != nil {
		return err
	}
	printJSON(logs)
	return nil
}

func runClearLogs(f LogsFlags, id string) error {
	c, err := apiClient(f.Client)
	if err != nil {
		return err
	}
	if err := c.ClearLogs(context.Background(), id); err != nil {
		return err
	}
	if id == "" {
		fmt.Println("cleared all logs")
	} else {
		fmt.Println("cleared logs for", id)
	}
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
