// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/quicksend-foundation/quicksend/chat"
	"github.com/quicksend-foundation/quicksend/cmd/quicksend/cli"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/quicksend"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:    "chat",
		Summary: "Create or join chat rooms",
		Subcommands: []*cli.Command{
			chatCreateCommand(),
			chatJoinCommand(),
		},
	}
}

func chatCreateCommand() *cli.Command {
	var common clientFlags
	var description string
	return &cli.Command{
		Name:    "create",
		Summary: "Create a room and talk in it",
		Usage:   "quicksend chat create <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
			common.register(flags)
			flags.StringVar(&description, "description", "", "room description")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("create takes exactly one room name")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			room, err := client.CreateChatRoom(args[0], description)
			if err != nil {
				return err
			}
			return chatLoop(client, room)
		},
		Examples: []cli.Example{
			{Command: "quicksend chat create ops --description 'operations chatter'"},
		},
	}
}

func chatJoinCommand() *cli.Command {
	var common clientFlags
	return &cli.Command{
		Name:    "join",
		Summary: "Join a room by ticket or topic ID",
		Usage:   "quicksend chat join <ticket|topic-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("join", pflag.ContinueOnError)
			common.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("join takes exactly one room ticket or topic ID")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			room, err := client.JoinChatRoom(args[0])
			if err != nil {
				return err
			}
			return chatLoop(client, room)
		},
	}
}

// chatLoop runs the interactive session for one room: incoming events
// print to stdout, stdin lines are sent as messages. "/share <name>"
// posts a file-share message, "/quit" (or EOF, or SIGINT) leaves.
func chatLoop(client *quicksend.Client, room *chat.Room) error {
	ctx, stop := signalContext()
	defer stop()

	ticket, err := client.RoomTicket(room.ID)
	if err != nil {
		return err
	}
	fmt.Printf("room %q — invite with:\n%s\n\n", room.Name, ticket)

	sub := client.SubscribeEvents(event.ScopeRoom(room.ID))
	defer sub.Close()
	go func() {
		for ev := range sub.Events() {
			chatEvent, ok := ev.(event.ChatEvent)
			if !ok {
				continue
			}
			printChatEvent(chatEvent)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer client.LeaveChatRoom(room.ID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleChatLine(ctx, client, room, line); err != nil {
				if errors.Is(err, errChatQuit) {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

var errChatQuit = errors.New("quit")

func handleChatLine(ctx context.Context, client *quicksend.Client, room *chat.Room, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errChatQuit
	case strings.HasPrefix(line, "/share "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/share "))
		_, err := client.ShareFileToRoom(ctx, room.ID, name)
		return err
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("unknown command %q (try /share <name> or /quit)", line)
	default:
		_, err := client.SendChatMessage(room.ID, line, chat.MessageText)
		return err
	}
}

func printChatEvent(ev event.ChatEvent) {
	switch ev.Kind {
	case event.MessageReceived:
		if ev.MessageType == string(chat.MessageFileShare) {
			fmt.Printf("<%s> shared %s — fetch with:\n%s\n", ev.Sender, ev.FileName, ev.Ticket)
			return
		}
		fmt.Printf("<%s> %s\n", ev.Sender, ev.Content)
	case event.UserJoined:
		fmt.Printf("* %s joined\n", ev.Sender)
	case event.UserLeft:
		fmt.Printf("* %s left\n", ev.Sender)
	case event.RoomError:
		fmt.Fprintf(os.Stderr, "room error: %s\n", ev.Error)
	}
}
