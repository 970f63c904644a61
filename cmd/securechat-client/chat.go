// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/securechat/internal/config"
	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/pkg/client"
	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/session/pgstore"
	"github.com/sage-x-project/securechat/pkg/wire"
)

var (
	relayAddr string
	pseudo    string
	reconnect bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Connect to a relay and chat from the terminal",
	Long: `Connects to the relay, registers (or reconnects) the account, and
reads commands from stdin:

  /secure <peer-id>          establish an end-to-end session
  /msg <peer-id> <text>      send a text message
  /group <id> <id> ...       create a group with the given members
  /add <group-id> <peer-id>  add a member (admin only)
  /quit                      exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("", os.Getenv("SECURECHAT_ENV"))
		if err != nil {
			return err
		}
		log := logger.NewLogger(os.Stderr, logger.WarnLevel)

		c := client.New(cfg, log)
		if err := c.Connect(relayAddr); err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if cfg.Storage.Enabled {
			if err := enablePersistence(c, cfg); err != nil {
				return err
			}
		}

		var id int32
		if reconnect {
			id, err = c.Reconnect(pseudo)
		} else {
			id, err = c.Register(pseudo)
		}
		if err != nil {
			return err
		}
		fmt.Printf("connected as %s (id %d)\n", pseudo, id)

		subscribeOutput(c)
		return commandLoop(c)
	},
}

func subscribeOutput(c *client.Client) {
	bus := c.Events()
	bus.Subscribe(events.KindTextMessageReceived, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.TextMessageReceived)
		fmt.Printf("[%d] %s\n", m.From, m.Body)
	})
	bus.Subscribe(events.KindSecureConversationEstablished, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.SecureConversationEstablished)
		fmt.Printf("secure session with %d established\n", m.PeerID)
	})
	bus.Subscribe(events.KindGroupKeyRotated, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.GroupKeyRotated)
		fmt.Printf("group %d key rotated\n", m.GroupID)
	})
	bus.Subscribe(events.KindError, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.Error)
		fmt.Printf("! %s %s: %s\n", m.Level, m.Type, m.Message)
	})
}

func commandLoop(c *client.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := runCommand(c, line); err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
	return scanner.Err()
}

func runCommand(c *client.Client, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/secure":
		peer, err := parseID(fields, 1)
		if err != nil {
			return err
		}
		go func() {
			if err := <-c.InitiateSecureConversation(peer); err != nil {
				fmt.Printf("! secure session with %d failed: %v\n", peer, err)
			}
		}()
		return nil

	case "/msg":
		peer, err := parseID(fields, 1)
		if err != nil {
			return err
		}
		if len(fields) < 3 {
			return fmt.Errorf("usage: /msg <peer-id> <text>")
		}
		body := strings.Join(fields[2:], " ")
		_, err = c.SendText(peer, body, func(status wire.AckStatus, reason string) {
			if status == wire.AckFailed {
				fmt.Printf("! message to %d failed: %s\n", peer, reason)
			}
		})
		return err

	case "/group":
		members := make([]int32, 0, len(fields)-1)
		for i := 1; i < len(fields); i++ {
			id, err := parseID(fields, i)
			if err != nil {
				return err
			}
			members = append(members, id)
		}
		if len(members) == 0 {
			return fmt.Errorf("usage: /group <id> <id> ...")
		}
		return c.CreateGroup(members)

	case "/add":
		groupID, err := parseID(fields, 1)
		if err != nil {
			return err
		}
		memberID, err := parseID(fields, 2)
		if err != nil {
			return err
		}
		return c.AddGroupMember(groupID, memberID)

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// enablePersistence connects the persistent session-key store so
// established sessions survive restarts.
func enablePersistence(c *client.Client, cfg *config.Config) error {
	kek, err := hex.DecodeString(cfg.Storage.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("storage encryption key: %w", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("storage connect: %w", err)
	}
	store, err := pgstore.New(pool, kek)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return c.EnablePersistence(ctx, store)
}

func parseID(fields []string, idx int) (int32, error) {
	if idx >= len(fields) {
		return 0, fmt.Errorf("missing id argument")
	}
	v, err := strconv.ParseInt(fields[idx], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad id %q", fields[idx])
	}
	return int32(v), nil
}

func init() {
	chatCmd.Flags().StringVarP(&relayAddr, "relay", "r", "127.0.0.1:1666", "relay address")
	chatCmd.Flags().StringVarP(&pseudo, "pseudo", "p", "", "account pseudonym")
	chatCmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect an existing account")
	_ = chatCmd.MarkFlagRequired("pseudo")
	rootCmd.AddCommand(chatCmd)
}
