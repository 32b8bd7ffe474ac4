package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrarca/nats-micro/client"
)

var requestCmd = &cobra.Command{
	Use:   "request <subject> [payload]",
	Short: "Send a single request to a service endpoint",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, c, err := connect()
		if err != nil {
			return err
		}
		defer b.Close()

		var payload []byte
		if len(args) == 2 {
			payload = []byte(args[1])
		}

		resp, err := c.Request(context.Background(), args[0], payload, nil, maxWait)
		if err != nil {
			var svcErr *client.ServiceError
			if errors.As(err, &svcErr) {
				return fmt.Errorf("%d %s", svcErr.Code, svcErr.Description)
			}
			return err
		}
		fmt.Println(string(resp.Data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
}
