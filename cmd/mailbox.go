package cmd

import (
	"errors"

	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <mailbox>",
	Short: "Create a mailbox",
	RunE:  runCreate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <mailbox>",
	Short: "Delete an empty mailbox",
	RunE:  runDelete,
}

var renameCmd = &cobra.Command{
	Use:   "rename <mailbox> <new name>",
	Short: "Rename or move a mailbox",
	RunE:  runRename,
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <mailbox>",
	Short: "Subscribe to a mailbox",
	RunE:  runSubscribe,
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <mailbox>",
	Short: "Unsubscribe from a mailbox",
	RunE:  runUnsubscribe,
}

func init() {
	rootCmd.AddCommand(createCmd, deleteCmd, renameCmd, subscribeCmd, unsubscribeCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		view, err := service.GetOrCreateMailbox(global.user, args[0], false, true)
		if err != nil {
			return err
		}
		term.Infof("mailbox %s created", view.Name())
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		if err := service.DeleteMailbox(global.user, args[0]); err != nil {
			return err
		}
		term.Infof("mailbox %s deleted", args[0])
		return nil
	})
}

func runRename(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return errors.New("missing mailbox name and new name")
	}
	return withService(func(service *folder.Service) error {
		if err := service.RenameMailbox(global.user, args[0], args[1]); err != nil {
			return err
		}
		term.Infof("mailbox %s renamed to %s", args[0], args[1])
		return nil
	})
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		return service.SubscribeMailbox(global.user, args[0])
	})
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("missing mailbox name")
	}
	return withService(func(service *folder.Service) error {
		return service.UnsubscribeMailbox(global.user, args[0])
	})
}
