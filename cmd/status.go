package cmd

import (
	"errors"

	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <mailbox>",
	Short: "Display the status of one mailbox",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		view, err := service.GetMailbox(global.user, args[0])
		if err != nil {
			return err
		}
		messages, err := view.MessageCount()
		if err != nil {
			return err
		}
		unseen, err := view.UnseenCount()
		if err != nil {
			return err
		}
		recent, err := view.RecentCount(false)
		if err != nil {
			return err
		}
		uidNext, err := view.UidNext()
		if err != nil {
			return err
		}
		uidValidity, err := view.UidValidity()
		if err != nil {
			return err
		}
		term.Infof("%s: %d messages, %d unseen, %d recent, UIDNEXT %d, UIDVALIDITY %d",
			view.Name(), messages, unseen, recent, uidNext, uidValidity)
		return nil
	})
}
