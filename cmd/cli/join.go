package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hilthontt/burner/pkg/roomclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const chatHelp = `commands: /ttl  /extend <seconds>  /destroy  /quit`

// joinCmd represents the join command
var joinCmd = &cobra.Command{
	Use:   "join <room_id>",
	Short: "Joins an existing room.",
	Long: `Enters the room and relays lines typed on stdin as messages.
` + chatHelp,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newRoomClient()
		if err != nil {
			return err
		}
		return chat(cmd, client, args[0])
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func chat(cmd *cobra.Command, client *roomclient.Client, roomID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	enterCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	info, err := client.Enter(enterCtx, roomID)
	cancel()
	switch {
	case errors.Is(err, roomclient.ErrRoomNotFound):
		return fmt.Errorf("room %s does not exist or has expired", roomID)
	case errors.Is(err, roomclient.ErrRoomFull):
		return fmt.Errorf("room %s already has two participants", roomID)
	case err != nil:
		return err
	}

	session, err := client.Join(ctx, roomID, roomclient.SessionOptions{
		Username: viper.GetString(usernameKey),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	role := "guest"
	if info.IsOwner {
		role = "owner"
	}
	fmt.Fprintf(out, "room %s as %s (%s), %s left\n", roomID, session.Username(), role, formatTTL(info.TTL))
	fmt.Fprintln(out, chatHelp)

	lines := readLines(cmd.InOrStdin())

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-session.Events():
			if !ok {
				if session.State() == roomclient.StateDestroyed {
					fmt.Fprintln(out, "room destroyed")
					return nil
				}
				return errors.New("lost connection to the room")
			}
			printEvent(out, session, ev)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(out, session, line); done {
				return nil
			}
		}
	}
}

// handleLine reports whether the user asked to leave.
func handleLine(out io.Writer, session *roomclient.Session, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch fields := strings.Fields(line); fields[0] {
	case "/quit":
		return true
	case "/ttl":
		fmt.Fprintf(out, "%s left\n", formatTTL(session.Remaining()))
	case "/destroy":
		err = session.Destroy()
	case "/extend":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: /extend <seconds>")
			return false
		}
		seconds, perr := strconv.ParseInt(fields[1], 10, 64)
		if perr != nil || seconds <= 0 {
			fmt.Fprintln(out, "seconds must be a positive integer")
			return false
		}
		err = session.ExtendTTL(seconds)
	default:
		err = session.Send(line)
	}

	if err != nil {
		fmt.Fprintln(out, "error:", err)
	}
	return false
}

func printEvent(out io.Writer, session *roomclient.Session, ev roomclient.Event) {
	switch ev.Kind {
	case roomclient.EventStateChanged:
		fmt.Fprintf(out, "* %s\n", ev.State)
	case roomclient.EventTTL:
		fmt.Fprintf(out, "* %s left\n", formatTTL(ev.TTL))
	case roomclient.EventError:
		if ev.Code != "" {
			fmt.Fprintf(out, "! %s: %v\n", ev.Code, ev.Err)
		} else {
			fmt.Fprintf(out, "! %v\n", ev.Err)
		}
	case roomclient.EventMessage:
		who := ev.Message.Sender
		if who == session.Username() {
			who = "you"
		}
		ts := time.UnixMilli(ev.Message.Timestamp).Format("15:04:05")
		fmt.Fprintf(out, "[%s] %s: %s\n", ts, who, ev.Message.Text)
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func formatTTL(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
