package cmd

import (
	"errors"
	"strconv"

	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var expungeCmd = &cobra.Command{
	Use:   "expunge <mailbox> [uid]",
	Short: "Remove messages flagged Deleted, or one message by uid",
	RunE:  runExpunge,
}

func init() {
	rootCmd.AddCommand(expungeCmd)
}

func runExpunge(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		view, err := service.GetMailbox(global.user, args[0])
		if err != nil {
			return err
		}
		if len(args) > 1 {
			uid, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return errors.New("message uid must be a number")
			}
			if err = view.ExpungeUid(uid); err != nil {
				return err
			}
			term.Infof("%s: uid %d expunged", view.Name(), uid)
			return nil
		}
		expunged, err := view.Expunge()
		if err != nil {
			return err
		}
		term.Infof("%s: %d messages expunged", view.Name(), len(expunged))
		return nil
	})
}
