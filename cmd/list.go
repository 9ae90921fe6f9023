package cmd

import (
	"strconv"

	"github.com/creativeprojects/imapview/folder"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "Display list of mailboxes",
	RunE:  runList,
}

var listSubscribed bool

func init() {
	listCmd.Flags().BoolVar(&listSubscribed, "subscribed", false, "only list subscribed mailboxes")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}
	return withService(func(service *folder.Service) error {
		mailboxes, err := service.ListMailboxes(global.user, pattern, listSubscribed)
		if err != nil {
			return err
		}
		table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Mailbox", "Messages", "Unseen", "Recent", "UIDVALIDITY"},
		})
		for _, info := range mailboxes {
			if !info.Selectable {
				table.Data = append(table.Data, []string{info.Name, "-", "-", "-", "-"})
				continue
			}
			messages, err := info.View.MessageCount()
			if err != nil {
				return err
			}
			unseen, err := info.View.UnseenCount()
			if err != nil {
				return err
			}
			recent, err := info.View.RecentCount(false)
			if err != nil {
				return err
			}
			uidValidity, err := info.View.UidValidity()
			if err != nil {
				return err
			}
			table.Data = append(table.Data, []string{
				info.Name,
				strconv.Itoa(messages),
				strconv.Itoa(unseen),
				strconv.Itoa(recent),
				strconv.FormatInt(uidValidity, 10),
			})
		}
		return table.Render()
	})
}
