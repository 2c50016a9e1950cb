package identity

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/faceattend/internal/analysis"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/facestore"
)

// Command creates the identity command group for managing enrolled employees.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identity",
		Aliases: []string{"employee"},
		Short:   "Manage enrolled employees",
	}

	cmd.AddCommand(
		listCommand(settings),
		addCommand(settings),
		updateCommand(settings),
		removeCommand(settings),
	)
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enrolled employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenStore(settings, nil)
			if err != nil {
				return err
			}
			return PrintIdentities(cmd.OutOrStdout(), store.Identities())
		},
	}
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add an employee without a face template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenStore(settings, nil)
			if err != nil {
				return err
			}
			if err := store.AddIdentityMetadataOnly(args[0], args[1], department); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "Employee department")
	return cmd
}

func updateCommand(settings *conf.Settings) *cobra.Command {
	var name, department string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an employee's name or department; empty values are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenStore(settings, nil)
			if err != nil {
				return err
			}
			if err := store.UpdateIdentity(args[0], name, department); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&department, "department", "", "New department")
	return cmd
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"delete", "rm"},
		Short:   "Remove an employee, their template and photos",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenStore(settings, nil)
			if err != nil {
				return err
			}
			if err := store.DeleteIdentity(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

// PrintIdentities writes one row per identity.
func PrintIdentities(out io.Writer, identities []facestore.Identity) error {
	if out == nil {
		out = os.Stdout
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tEMBEDDINGS")
	for _, ident := range identities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", ident.ID, ident.Name, ident.Department, len(ident.Embeddings))
	}
	return w.Flush()
}
