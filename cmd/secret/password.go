package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/benaskins/secretkit/secret"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultSchemaName = "org.secretkit.Generic"

var (
	schemaName  string
	anySchema   bool
	collection  string
	fromCommand string
	showSecrets bool
)

func schemaArgs(args []string) (*secret.Schema, secret.Attributes, error) {
	var opts []secret.SchemaOption
	if anySchema {
		opts = append(opts, secret.DontMatchName())
	}
	return parseAttributes(schemaName, args, opts...)
}

// passwords parses attribute arguments and returns the facade to run
// against, bound to the selected collection.
func passwords(s *session, args []string) (*secret.Passwords, secret.Attributes, error) {
	schema, attrs, err := schemaArgs(args)
	if err != nil {
		return nil, nil, err
	}
	alias := collection
	if alias == "" {
		alias = cfg.DefaultCollection
	}
	return s.client.Passwords(schema).InCollection(alias), attrs, nil
}

// search finds matching items, across every collection unless one was
// named.
func search(s *session, args []string) ([]*secret.Item, error) {
	if collection == "" {
		p, attrs, err := passwords(s, args)
		if err != nil {
			return nil, err
		}
		return await(s, func(cont func([]*secret.Item, error)) error {
			return p.Search(attrs, cont)
		})
	}

	schema, attrs, err := schemaArgs(args)
	if err != nil {
		return nil, err
	}
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return await(s, func(cont func([]*secret.Item, error)) error {
		return c.Search(schema, attrs, cont)
	})
}

func readPassword() (string, error) {
	if fromCommand != "" {
		return runPasswordCommand(fromCommand)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Enter password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return string(b), nil
	}
	b, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

var storeCmd = &cobra.Command{
	Use:   "store <label> [key=value...]",
	Short: "Store a password",
	Long: `Store a password under the given attributes, replacing any item with
the same attributes. The password is read from the terminal, from stdin
when piped, or from the output of --from-command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		p, attrs, err := passwords(s, args[1:])
		if err != nil {
			return err
		}
		if _, err := await(s, func(cont func(bool, error)) error {
			return p.Store(args[0], password, attrs, cont)
		}); err != nil {
			return err
		}
		fmt.Printf("Password %q stored\n", args[0])
		return nil
	},
}

var lookupCmd = &cobra.Command{
	Use:     "lookup [key=value...]",
	Short:   "Print the first password matching the attributes",
	Aliases: []string{"get"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		p, attrs, err := passwords(s, args)
		if err != nil {
			return err
		}
		password, err := await(s, func(cont func(string, error)) error {
			return p.Lookup(attrs, cont)
		})
		if secret.IsNotFound(err) {
			return fmt.Errorf("no password matches %s", formatArgs(args))
		}
		if err != nil {
			return err
		}
		fmt.Println(password)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:     "search [key=value...]",
	Short:   "List items matching the attributes",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		items, err := search(s, args)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No matching items")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if showSecrets {
			fmt.Fprintln(w, "LABEL\tSCHEMA\tMODIFIED\tATTRIBUTES\tSECRET")
		} else {
			fmt.Fprintln(w, "LABEL\tSCHEMA\tMODIFIED\tATTRIBUTES")
		}
		for _, item := range items {
			row := fmt.Sprintf("%s\t%s\t%s\t%s", item.Label(), item.SchemaName(),
				item.Modified().Format("2006-01-02 15:04"), formatAttributes(item.Attributes()))
			if showSecrets {
				text := "(locked)"
				if payload := item.Secret(); payload != nil {
					text, _ = payload.Text()
				}
				row += "\t" + text
			}
			fmt.Fprintln(w, row)
		}
		w.Flush()
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear [key=value...]",
	Short:   "Delete every item matching the attributes",
	Aliases: []string{"rm"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		p, attrs, err := passwords(s, args)
		if err != nil {
			return err
		}
		if _, err := await(s, func(cont func(bool, error)) error {
			return p.Clear(attrs, cont)
		}); err != nil {
			return err
		}
		fmt.Printf("Cleared items matching %s\n", formatArgs(args))
		return nil
	},
}

func formatArgs(args []string) string {
	if len(args) == 0 {
		return "(any)"
	}
	return strings.Join(args, " ")
}

func init() {
	for _, cmd := range []*cobra.Command{storeCmd, lookupCmd, searchCmd, clearCmd} {
		cmd.Flags().StringVar(&schemaName, "schema", defaultSchemaName, "Schema name the item is stored under")
		rootCmd.AddCommand(cmd)
	}
	storeCmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection alias (defaults to the configured collection)")
	searchCmd.Flags().StringVarP(&collection, "collection", "c", "", "Only search the collection with this alias")
	for _, cmd := range []*cobra.Command{lookupCmd, searchCmd, clearCmd} {
		cmd.Flags().BoolVar(&anySchema, "any-schema", false, "Match items stored under any schema")
	}
	storeCmd.Flags().StringVar(&fromCommand, "from-command", "", "Shell command whose output is the password")
	searchCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets of unlocked items")
}
