package cmd

import (
	"errors"
	"os"

	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/mailbox"
	"github.com/creativeprojects/imapview/term"
	"github.com/spf13/cobra"
)

var appendCmd = &cobra.Command{
	Use:   "append <mailbox> <file>...",
	Short: "Append message files to a mailbox",
	RunE:  runAppend,
}

var appendFlags []string

func init() {
	appendCmd.Flags().StringArrayVar(&appendFlags, "flag", nil, "flag to set on the messages (can be repeated)")
	rootCmd.AddCommand(appendCmd)
}

func runAppend(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return errors.New("missing mailbox name and message file")
	}
	flags := mailbox.FlagSetFromStrings(appendFlags)
	return withService(func(service *folder.Service) error {
		view, err := service.GetOrCreateMailbox(global.user, args[0], true, true)
		if err != nil {
			return err
		}
		for _, fileName := range args[1:] {
			file, err := os.Open(fileName)
			if err != nil {
				return err
			}
			uid, err := view.AppendMessage(file, flags)
			file.Close()
			if err != nil {
				return err
			}
			term.Infof("%s: appended %s as uid %d", view.Name(), fileName, uid)
		}
		return nil
	})
}
