package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/benaskins/secretkit/secret"
	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Short:   "Manage collections",
	Aliases: []string{"col"},
}

var collectionListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List collections",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		svc, err := s.service()
		if err != nil {
			return err
		}
		collections := svc.Collections()
		if len(collections) == 0 {
			fmt.Println("No collections")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tLABEL\tLOCKED\tMODIFIED")
		for _, c := range collections {
			alias := c.Alias()
			if alias == "" {
				alias = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", alias, c.Label(), c.Locked(), c.Modified().Format("2006-01-02 15:04"))
		}
		w.Flush()
		return nil
	},
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <label> [alias]",
	Short: "Create a collection",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		alias := ""
		if len(args) == 2 {
			alias = args[1]
		}
		c, err := await(s, issued(func(cont func(*secret.Collection, error)) {
			s.client.CreateCollection(args[0], alias, cont)
		}))
		if err != nil {
			return err
		}
		fmt.Printf("Collection %q created (%s)\n", c.Label(), c.ID())
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:     "delete <alias>",
	Short:   "Delete a collection and everything in it",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.collection(args[0])
		if err != nil {
			return err
		}
		if _, err := await(s, issued(c.Delete)); err != nil {
			return err
		}
		fmt.Printf("Collection %q deleted\n", args[0])
		return nil
	},
}

func setLockedCmd(use, short string, locked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <alias>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			svc, err := s.service()
			if err != nil {
				return err
			}
			c, err := s.collection(args[0])
			if err != nil {
				return err
			}
			n, err := await(s, issued(func(cont func(int, error)) {
				if locked {
					svc.Lock([]*secret.Collection{c}, cont)
				} else {
					svc.Unlock([]*secret.Collection{c}, cont)
				}
			}))
			if err != nil {
				return err
			}
			fmt.Printf("%d collection(s) %sed\n", n, use)
			return nil
		},
	}
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	collectionCmd.AddCommand(setLockedCmd("lock", "Lock a collection", true))
	collectionCmd.AddCommand(setLockedCmd("unlock", "Unlock a collection", false))
	rootCmd.AddCommand(collectionCmd)
}
