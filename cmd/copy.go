package cmd

import (
	"errors"
	"strconv"

	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var copyCmd = &cobra.Command{
	Use:   "copy <mailbox> <uid> <target mailbox>",
	Short: "Copy a message into another mailbox",
	RunE:  runCopy,
}

func init() {
	rootCmd.AddCommand(copyCmd)
}

func runCopy(cmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		return errors.New("missing mailbox name, message uid and target mailbox name")
	}
	uid, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.New("message uid must be a number")
	}
	return withService(func(service *folder.Service) error {
		source, err := service.GetMailbox(global.user, args[0])
		if err != nil {
			return err
		}
		target, err := service.GetOrCreateMailbox(global.user, args[2], true, true)
		if err != nil {
			return err
		}
		copied, err := source.CopyMessage(uid, target)
		if err != nil {
			return err
		}
		term.Infof("%s: uid %d copied to %s as uid %d", source.Name(), uid, target.Name(), copied)
		return nil
	})
}
