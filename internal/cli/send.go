package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/spf13/cobra"
)

type sendFlags struct {
	url     string
	channel string
	author  string
}

func newSendCmd() *cobra.Command {
	var flags sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a chat line to a running gateway",
	}
	cmd.PersistentFlags().StringVar(&flags.url, "url", "", "gateway base URL (default derived from config)")
	cmd.PersistentFlags().StringVarP(&flags.channel, "channel", "c", "", "channel ID (default: gateway default channel)")
	cmd.PersistentFlags().StringVarP(&flags.author, "author", "a", "", "author display name")

	cmd.AddCommand(&cobra.Command{
		Use:   "feed <text...>",
		Short: "Add a line to the channel's context without asking for a reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			var resp struct {
				Message string `json:"message"`
			}
			if err := client.post(cmd.Context(), "/feed", flags.body(args), &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "respond <text...>",
		Short: "Add a line to the channel's context and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			var resp struct {
				Response struct {
					Text string `json:"text"`
				} `json:"response"`
			}
			if err := client.post(cmd.Context(), "/response", flags.body(args), &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Response.Text)
			return nil
		},
	})

	return cmd
}

func (f *sendFlags) client() (*gatewayClient, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return newGatewayClient(cfg, f.url), nil
}

func (f *sendFlags) body(args []string) map[string]any {
	body := map[string]any{
		"content":   strings.Join(args, " "),
		"timestamp": time.Now().UnixMilli(),
	}
	if f.channel != "" {
		body["channelId"] = f.channel
	}
	if f.author != "" {
		body["authorName"] = f.author
	}
	return body
}
