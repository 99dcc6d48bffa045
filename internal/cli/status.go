package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/gateway"
	"github.com/soyeahso/baogate/internal/version"
	"github.com/spf13/cobra"
)

type sessionsReport struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and the state of a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading %s: %v\n", paths.Config, err)
				return nil
			}
			printConfigSummary(out, cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			printLiveStatus(ctx, out, newGatewayClient(cfg, url))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default derived from config)")
	return cmd
}

func printConfigSummary(out io.Writer, cfg config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	cyan.Fprintf(out, "baogate %s", version.Version)
	gray.Fprintf(out, " (commit %s)\n\n", version.Commit)

	fmt.Fprintf(out, "Config:   %s\n", paths.Config)
	fmt.Fprintf(out, "Data:     %s\n", paths.Data)
	fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s ws=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.WebSocketEnabled())
	fmt.Fprintf(out, "Provider: %s model=%s tools=%s\n",
		cfg.Provider.Name, cfg.Provider.Model, strings.Join(cfg.Provider.Tools, ","))
	fmt.Fprintf(out, "Session:  store=%s maxHistory=%d trailingModelTurn=%s\n",
		cfg.Session.Store, cfg.Session.MaxHistory, cfg.Session.TrailingModelTurn)
	if irc := cfg.Channels.IRC; irc != nil && irc.Enabled {
		fmt.Fprintf(out, "IRC:      server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		gray.Fprintln(out, "IRC:      (disabled)")
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		red.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}

func printLiveStatus(ctx context.Context, out io.Writer, client *gatewayClient) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	fmt.Fprintln(out)
	var health gateway.HealthResponse
	if err := client.get(ctx, "/health", &health); err != nil {
		yellow.Fprint(out, "▶ ")
		fmt.Fprintf(out, "Gateway not reachable at %s\n", client.base)
		gray.Fprintf(out, "  %v\n", err)
		return
	}

	green.Fprint(out, "▶ ")
	fmt.Fprintf(out, "Gateway %s at %s (up %s, %d ws clients)\n",
		health.Status, client.base, time.Duration(health.UptimeSeconds)*time.Second, health.Clients)
	for _, ch := range health.Channels {
		mark := green
		if !ch.Connected {
			mark = yellow
		}
		mark.Fprint(out, "  ● ")
		fmt.Fprintf(out, "%s connected=%v", ch.ChannelID, ch.Connected)
		if ch.LastError != "" {
			gray.Fprintf(out, " (%s)", ch.LastError)
		}
		fmt.Fprintln(out)
	}

	var sessions sessionsReport
	if err := client.get(ctx, "/sessions", &sessions); err != nil {
		yellow.Fprintf(out, "  sessions unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(out, "\nSessions (%d):\n", len(sessions.Sessions))
	for _, s := range sessions.Sessions {
		fmt.Fprintf(out, "  %-24s turns=%-4d last=%-5s updated=%s\n",
			s.ChannelID, s.TurnCount, s.LastRole, s.UpdatedAt.Local().Format(time.DateTime))
	}
}
