package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roostd/roostd/pkg/client"
)

// command implements CLI verbs against a running daemon.
type command struct{}

func createRequestFromFlags(flags CreateFlags) client.CreateRequest {
	return client.CreateRequest{
		Label:   flags.Label,
		Target:  flags.Target,
		Browser: flags.Browser,
		RunPolicy: client.RunPolicy{
			KeepAlive:          flags.KeepAlive,
			RunAtLoad:          flags.RunAtLoad,
			SuccessfulExitOnly: flags.SuccessfulExitOnly,
		},
	}
}

// newAPIClient builds a daemon client from the shared API flags.
func newAPIClient(flags APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	cfg.Insecure = flags.Insecure
	return client.New(cfg)
}

func (command) List(flags APIFlags) error {
	c := newAPIClient(flags)
	agents, err := c.List(context.Background())
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("no launch agents registered")
		return nil
	}
	printJSON(agents)
	return nil
}

func (command) Status(flags APIFlags, watch bool, interval time.Duration) error {
	c := newAPIClient(flags)
	if !watch {
		snaps, err := c.Status(context.Background())
		if err != nil {
			return err
		}
		printStatus(snaps)
		return nil
	}

	w := client.NewWatcher(c, interval, func(snaps []client.Snapshot) {
		printStatus(snaps)
	})
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}

func (command) Create(flags CreateFlags, web bool) error {
	c := newAPIClient(flags.API)
	req := createRequestFromFlags(flags)
	var (
		agent client.Agent
		err   error
	)
	if web {
		agent, err = c.CreateWeb(context.Background(), req)
	} else {
		agent, err = c.Create(context.Background(), req)
	}
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", agent.Label, agent.DescriptorPath)
	return nil
}

func (command) Install(flags CreateFlags) error {
	c := newAPIClient(flags.API)
	agent, err := c.Install(context.Background(), createRequestFromFlags(flags))
	if err != nil {
		return err
	}
	fmt.Printf("installed %s\n", agent.Label)
	return nil
}

func (command) LabelVerb(verb string, flags LabelFlags) error {
	c := newAPIClient(flags.API)
	ctx := context.Background()
	var err error
	switch verb {
	case "start":
		err = c.Start(ctx, flags.Label)
	case "stop":
		err = c.Stop(ctx, flags.Label)
	case "restart":
		err = c.Restart(ctx, flags.Label)
	case "delete":
		err = c.Delete(ctx, flags.Label)
	default:
		return fmt.Errorf("unknown verb %q", verb)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", verb, flags.Label)
	return nil
}

func (command) Test(flags LabelFlags) error {
	c := newAPIClient(flags.API)
	res, err := c.Test(context.Background(), flags.Label)
	if err != nil {
		return err
	}
	switch {
	case res.Crashed:
		fmt.Printf("%s crashed within %s (exit status %d)\n", res.Label, res.Window, res.LastExitStatus)
	case res.ReachedRunning:
		fmt.Printf("%s running (pid %d)\n", res.Label, res.PID)
	default:
		fmt.Printf("%s did not reach running within %s\n", res.Label, res.Window)
	}
	return nil
}

func (command) View(flags LabelFlags) error {
	c := newAPIClient(flags.API)
	content, err := c.View(context.Background(), flags.Label)
	if err != nil {
		return err
	}
	fmt.Print(content)
	return nil
}

func (command) Update(flags UpdateFlags) error {
	content, err := os.ReadFile(flags.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", flags.File, err)
	}
	c := newAPIClient(flags.API)
	if err := c.Update(context.Background(), flags.Label, string(content)); err != nil {
		return err
	}
	fmt.Printf("updated %s\n", flags.Label)
	return nil
}

func (command) Export(flags ExportFlags) error {
	c := newAPIClient(flags.API)
	res, err := c.Export(context.Background(), flags.Label)
	if err != nil {
		return err
	}
	out := flags.Out
	if out == "" {
		out = res.Filename
	}
	if err := os.WriteFile(out, []byte(res.Content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("exported %s to %s\n", flags.Label, out)
	return nil
}

func printStatus(snaps []client.Snapshot) {
	if len(snaps) == 0 {
		fmt.Println("no launch agents")
		return
	}
	for _, s := range snaps {
		state := "not loaded"
		switch {
		case s.IsRunning():
			state = fmt.Sprintf("running (pid %d)", *s.PID)
		case s.Loaded:
			state = "loaded"
		}
		if s.LastExitStatus != nil && *s.LastExitStatus != 0 {
			state += fmt.Sprintf(", last exit %d", *s.LastExitStatus)
		}
		fmt.Printf("%-40s %s\n", s.Label, state)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
