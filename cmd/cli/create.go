package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new room.",
	Long: `Creates a new room and prints its id. With --join the room is entered
and joined right away, which makes you its owner.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRoomClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		roomID, err := client.CreateRoom(ctx)
		cancel()
		if err != nil {
			return err
		}

		join, _ := cmd.Flags().GetBool("join")
		if !join {
			fmt.Fprintln(cmd.OutOrStdout(), roomID)
			return nil
		}

		return chat(cmd, client, roomID)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().BoolP("join", "j", false, "join the room after creating it")
}
