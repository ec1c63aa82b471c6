package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "walscan",
		Usage: "index bitcoin headers and scan blocks for a watch-only wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.toml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "create a wallet with a fresh seed and a default account",
				Action: action(create),
			},
			{
				Name:   "check",
				Usage:  "verify the keychain and the wallet caches",
				Action: action(check),
			},
			{
				Name:      "account-new",
				Usage:     "add an account",
				ArgsUsage: "NAME",
				Action:    action(accountNew),
			},
			{
				Name:      "account-default",
				Usage:     "select the account used when none is given",
				ArgsUsage: "NAME",
				Action:    action(accountDefault),
			},
			{
				Name:   "account-list",
				Usage:  "list accounts with their confirmed balance",
				Action: action(accountList),
			},
			{
				Name:  "address-new",
				Usage: "derive and watch a new address",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Usage: "account name (default account if empty)"},
					&cli.BoolFlag{Name: "change", Usage: "derive on the change branch"},
				},
				Action: action(addressNew),
			},
			{
				Name:   "address-last",
				Usage:  "print the most recently derived address",
				Action: action(addressLast),
			},
			{
				Name:   "tx-list",
				Usage:  "list wallet transactions",
				Action: action(txList),
			},
			{
				Name:   "seed-net",
				Usage:  "resolve DNS seeds into the peer cache",
				Action: action(seedNet),
			},
			{
				Name:   "sync-headers",
				Usage:  "extend the header index to the source tip",
				Action: action(syncHeaders),
			},
			{
				Name:   "scan-blocks",
				Usage:  "scan blocks from the scan cursor to the tip",
				Action: action(scanBlocks),
			},
			{
				Name:      "rescan-ptr",
				Usage:     "move the scan cursor back to an indexed block",
				ArgsUsage: "HASH",
				Action:    action(rescanPtr),
			},
			{
				Name:  "follow",
				Usage: "sync and scan in a loop until interrupted",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Value: time.Minute, Usage: "pause between rounds"},
				},
				Action: action(follow),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "walscan:", err)
		os.Exit(1)
	}
}
