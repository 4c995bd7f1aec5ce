package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcpp-hub/adchub/hub"
)

// accountsDB lazily opens the same store serve.go points at, so
// `adchubd accounts ...` can be run offline against a stopped hub's
// database. Grounded on the teacher's OpenDB/CloseDB pair in its own
// profiles.go, rebuilt against hub.Store/hub.Account instead of the
// unretrieved hubDB/profile-map machinery.
var accountsDB *hub.Store

func openAccountsDB() error {
	conf, _, err := readConfig(false)
	if err != nil {
		return err
	}
	if conf.Database.Path == "" {
		return errors.New("no database.path configured")
	}
	db, err := hub.OpenStore(conf.Database.Path)
	if err != nil {
		return err
	}
	accountsDB = db
	return nil
}

func closeAccountsDB() error {
	if accountsDB == nil {
		return nil
	}
	return accountsDB.Close()
}

func init() {
	cmdAcc := &cobra.Command{
		Use:     "accounts [command]",
		Aliases: []string{"account", "acc"},
		Short:   "operator account commands",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return openAccountsDB()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeAccountsDB()
		},
	}
	Root.AddCommand(cmdAcc)

	cmdShow := &cobra.Command{
		Use:     "show <name>",
		Aliases: []string{"get"},
		Short:   "show an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected account name")
			}
			acc, err := accountsDB.Account(context.Background(), args[0])
			if err != nil {
				return err
			}
			if acc == nil {
				return fmt.Errorf("no such account: %s", args[0])
			}
			fmt.Printf("%s\tlevel=%d\tregistered=%d\n", acc.Name, acc.Level, acc.RegisterAt)
			return nil
		},
	}
	cmdAcc.AddCommand(cmdShow)

	cmdAdd := &cobra.Command{
		Use:     "create <name> <password> [level]",
		Aliases: []string{"add"},
		Short:   "create or update an operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 || len(args) > 3 {
				return errors.New("expected name, password, and optionally a level")
			}
			name, password := args[0], args[1]
			if name == "" || password == "" {
				return errors.New("name and password must not be empty")
			}
			level := 1
			if len(args) == 3 {
				if _, err := fmt.Sscanf(args[2], "%d", &level); err != nil {
					return fmt.Errorf("invalid level: %v", err)
				}
			}
			return accountsDB.PutAccount(context.Background(), name, password, level)
		},
	}
	cmdAcc.AddCommand(cmdAdd)

	cmdBan := &cobra.Command{
		Use:   "ban <kind> <target> <reason>",
		Short: "ban a cid, ip, or nick",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return errors.New("expected kind, target, and reason")
			}
			return accountsDB.PutBan(context.Background(), hub.Ban{
				Kind:   args[0],
				Target: args[1],
				Reason: args[2],
			})
		},
	}
	cmdAcc.AddCommand(cmdBan)

	cmdUnban := &cobra.Command{
		Use:   "unban <kind> <target>",
		Short: "lift a ban",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("expected kind and target")
			}
			return accountsDB.RemoveBan(context.Background(), args[0], args[1])
		},
	}
	cmdAcc.AddCommand(cmdUnban)
}
