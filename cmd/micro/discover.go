package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/petrarca/nats-micro/client"
)

var (
	styled     = isatty.IsTerminal(os.Stdout.Fd())
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#78a9ff")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8d8d8d"))
)

func label(s string) string {
	if styled {
		return labelStyle.Render(s)
	}
	return s
}

func dim(s string) string {
	if styled {
		return dimStyle.Render(s)
	}
	return s
}

var pingCmd = &cobra.Command{
	Use:   "ping [service]",
	Short: "Discover service instances",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, c, err := connect()
		if err != nil {
			return err
		}
		defer b.Close()

		opts := discoverOpts()
		if len(args) == 1 {
			opts = append(opts, client.ForService(args[0]))
		}

		results, err := c.Ping(context.Background(), opts...)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		for _, p := range results {
			fmt.Printf("%s %s %s %s\n",
				label(p.Name), p.Version, p.ID, dim(metaString(p.Metadata)))
		}
		fmt.Println(dim(fmt.Sprintf("%d instance(s)", len(results))))
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [service]",
	Short: "List service endpoints",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, c, err := connect()
		if err != nil {
			return err
		}
		defer b.Close()

		opts := discoverOpts()
		if len(args) == 1 {
			opts = append(opts, client.ForService(args[0]))
		}

		results, err := c.Info(context.Background(), opts...)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		for _, info := range results {
			fmt.Printf("%s %s %s\n", label(info.Name), info.Version, info.ID)
			if info.Description != "" {
				fmt.Printf("  %s\n", dim(info.Description))
			}
			for _, ep := range info.Endpoints {
				fmt.Printf("  %-20s subject=%s queue=%s\n", ep.Name, ep.Subject, ep.QueueGroup)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [service]",
	Short: "Collect service statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, c, err := connect()
		if err != nil {
			return err
		}
		defer b.Close()

		opts := discoverOpts()
		if len(args) == 1 {
			opts = append(opts, client.ForService(args[0]))
		}

		results, err := c.Stats(context.Background(), opts...)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		for _, s := range results {
			fmt.Printf("%s %s %s %s\n",
				label(s.Name), s.Version, s.ID,
				dim("started "+s.Started.Format(time.RFC3339)))
			for _, ep := range s.Endpoints {
				fmt.Printf("  %-20s requests=%d errors=%d avg=%s\n",
					ep.Name, ep.NumRequests, ep.NumErrors, ep.AverageProcessingTime)
				if ep.LastError != "" {
					fmt.Printf("    %s\n", dim("last error: "+ep.LastError))
				}
			}
		}
		return nil
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func metaString(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	out := ""
	for k, v := range meta {
		if out != "" {
			out += " "
		}
		out += k + "=" + v
	}
	return out
}

func init() {
	rootCmd.AddCommand(pingCmd, infoCmd, statsCmd)
}
