package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/technosupport/slothunter/internal/license"
	"github.com/technosupport/slothunter/internal/monitor"
	"github.com/technosupport/slothunter/internal/protocol"
)

type cli struct {
	daemon *daemonClient
	out    io.Writer
}

func (c *cli) printf(format string, a ...any) { fmt.Fprintf(c.out, format, a...) }

func newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func cmdActivate(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	key := license.NormalizeKey(args[0])
	if err := license.ValidateKey(key); err != nil {
		return err
	}
	var resp struct {
		Data license.Info `json:"data"`
	}
	if err := c.daemon.do(ctx, http.MethodPost, "/api/v1/license/activate", map[string]string{"licenseKey": key}, &resp); err != nil {
		return err
	}
	c.printf("License activated: %s (%s, expires %s)\n", resp.Data.Key, resp.Data.PlanType, resp.Data.ExpiresAt)
	return nil
}

func cmdDeactivate(ctx context.Context, c *cli, args []string) error {
	if err := c.daemon.do(ctx, http.MethodPost, "/api/v1/license/deactivate", nil, nil); err != nil {
		return err
	}
	c.printf("License removed.\n")
	return nil
}

func cmdStart(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("start")
	interval := fs.Int("interval", 0, "check interval in minutes")
	url := fs.String("url", "", "target booking page")
	sound := fs.Bool("sound", true, "play notification sound")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	update := &protocol.ConfigUpdate{CheckIntervalMinutes: *interval, TargetURL: *url}
	if fs.Changed("sound") {
		update.NotificationSound = sound
	}
	var resp struct {
		Config monitor.Config `json:"config"`
	}
	if err := c.daemon.do(ctx, http.MethodPost, "/api/v1/monitoring/start", protocol.StartPayload{Config: update}, &resp); err != nil {
		return err
	}
	c.printf("Monitoring started: every %d min", resp.Config.CheckIntervalMinutes)
	if resp.Config.TargetURL != "" {
		c.printf(", target %s", resp.Config.TargetURL)
	}
	c.printf("\n")
	return nil
}

func cmdStop(ctx context.Context, c *cli, args []string) error {
	if err := c.daemon.do(ctx, http.MethodPost, "/api/v1/monitoring/stop", nil, nil); err != nil {
		return err
	}
	c.printf("Monitoring stopped.\n")
	return nil
}

func cmdCheck(ctx context.Context, c *cli, args []string) error {
	var resp apiResponse
	if err := c.daemon.do(ctx, http.MethodPost, "/api/v1/check", nil, &resp); err != nil {
		return err
	}
	c.printf("%s\n", resp.Message)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func cmdStatus(ctx context.Context, c *cli, args []string) error {
	var resp struct {
		Data monitor.Status `json:"data"`
	}
	if err := c.daemon.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return err
	}
	st := resp.Data

	state := "stopped"
	if st.IsMonitoring {
		state = "running"
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Monitoring:\t%s\n", state)
	if st.License != nil {
		fmt.Fprintf(tw, "License:\t%s (%s, expires %s)\n", st.License.Key, st.License.PlanType, st.License.ExpiresAt)
	} else {
		fmt.Fprintf(tw, "License:\tnone\n")
	}
	fmt.Fprintf(tw, "Interval:\t%d min\n", st.Config.CheckIntervalMinutes)
	if st.Config.TargetURL != "" {
		fmt.Fprintf(tw, "Target:\t%s\n", st.Config.TargetURL)
	}
	fmt.Fprintf(tw, "Checks:\t%d\n", st.TotalChecks)
	fmt.Fprintf(tw, "Slots found:\t%d\n", st.SlotsFound)
	fmt.Fprintf(tw, "Last check:\t%s\n", formatTime(st.LastCheckAt))
	fmt.Fprintf(tw, "Last slot:\t%s\n", formatTime(st.LastSlotFoundAt))
	if st.LastSlotURL != "" {
		fmt.Fprintf(tw, "Last slot URL:\t%s\n", st.LastSlotURL)
	}
	return tw.Flush()
}

func cmdPages(ctx context.Context, c *cli, args []string) error {
	var pages []protocol.PageInfo
	if err := c.daemon.do(ctx, http.MethodGet, "/api/v1/pages", nil, &pages); err != nil {
		return err
	}
	if len(pages) == 0 {
		c.printf("No pages watched.\n")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOKING\tSLOTS\tURL")
	for _, p := range pages {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", p.ID, p.IsBookingPage, p.LastSlotCount, p.URL)
	}
	return tw.Flush()
}
