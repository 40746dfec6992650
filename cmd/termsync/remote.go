package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/appconfig"
	"pkt.systems/termsync/schema"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remote terminals in roster order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			client, err := newSyncClient(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = client.Stop(cmd.Context()) }()
			s := client.Sync()
			if err := s.FetchTerminals(cmd.Context()); err != nil {
				return err
			}
			return writeTerminals(cmd, s.Terminals())
		},
	}
}

func writeTerminals(cmd *cobra.Command, terminals []schema.Terminal) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tWINDOW\tTAB\tSIZE\tACTIVE")
	for _, t := range terminals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dx%d\t%t\n", t.ID, t.Name, t.WindowID, t.TabID, t.Columns, t.Rows, t.IsActive)
	}
	return w.Flush()
}

func newContentCmd(opts *rootOptions) *cobra.Command {
	var visible bool
	cmd := &cobra.Command{
		Use:   "content <id>",
		Short: "Print the content of one remote terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			client, err := newTransport(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			id := schema.TerminalID(args[0])
			if err := schema.ValidateTerminalID(id); err != nil {
				return err
			}
			content, err := client.FetchContent(cmd.Context(), id)
			if err != nil {
				return err
			}
			text := content.Content
			if visible {
				text = content.VisibleContent
			}
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&visible, "visible", false, "print only the visible screen")
	return cmd
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var noNewline bool
	cmd := &cobra.Command{
		Use:   "send <id> <text...>",
		Short: "Write text into a remote terminal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			client, err := newSyncClient(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = client.Stop(cmd.Context()) }()
			id := schema.TerminalID(args[0])
			text := strings.Join(args[1:], " ")
			resp, err := client.Sync().SendCommand(cmd.Context(), id, text, !noNewline)
			if err != nil {
				return err
			}
			if !resp.Success {
				if resp.Error != nil {
					return fmt.Errorf("remote reported failure: %s", *resp.Error)
				}
				return errors.New("remote reported failure")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", resp.TerminalID)
			return err
		},
	}
	cmd.Flags().BoolVar(&noNewline, "no-newline", false, "do not append a newline")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check remote service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			client, err := newTransport(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s connected=%t\n", health.Status, health.ConnectedToITerm2)
			if err != nil {
				return err
			}
			if !health.Healthy() {
				return fmt.Errorf("remote unhealthy: %s", health.Status)
			}
			return nil
		},
	}
}
