package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// revivalFile is the decoded form of a history file. The file holds either
// a bare list of messages or an object with channelId, roomName and history.
type revivalFile struct {
	ChannelID string
	RoomName  string
	History   []any
}

func loadRevivalFile(path string) (*revivalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	// YAML is a superset of JSON, so exported chat logs in either form decode here.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing history file %s: %w", path, err)
	}

	switch v := doc.(type) {
	case []any:
		return &revivalFile{History: v}, nil
	case map[string]any:
		rf := &revivalFile{}
		rf.ChannelID, _ = v["channelId"].(string)
		rf.RoomName, _ = v["roomName"].(string)
		history, ok := v["history"].([]any)
		if !ok {
			return nil, fmt.Errorf("history file %s: history must be a list", path)
		}
		rf.History = history
		return rf, nil
	default:
		return nil, fmt.Errorf("history file %s: expected a list or an object", path)
	}
}

func newReviveCmd() *cobra.Command {
	var (
		url     string
		channel string
		room    string
	)

	cmd := &cobra.Command{
		Use:   "revive <history-file>",
		Short: "Rebuild a channel's session from a JSON or YAML chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := loadRevivalFile(args[0])
			if err != nil {
				return err
			}
			if channel != "" {
				rf.ChannelID = channel
			}
			if room != "" {
				rf.RoomName = room
			}
			if rf.ChannelID == "" {
				return fmt.Errorf("no channel ID: set --channel or channelId in the file")
			}

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			body := map[string]any{
				"channelId": rf.ChannelID,
				"history":   rf.History,
			}
			if rf.RoomName != "" {
				body["roomName"] = rf.RoomName
			}

			var resp struct {
				Message           string `json:"message"`
				ProcessedMessages int    `json:"processed_messages"`
			}
			if err := newGatewayClient(cfg, url).post(cmd.Context(), "/revival", body, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default derived from config)")
	cmd.Flags().StringVarP(&channel, "channel", "c", "", "channel ID (overrides the file)")
	cmd.Flags().StringVarP(&room, "room", "r", "", "room name (overrides the file)")
	return cmd
}
