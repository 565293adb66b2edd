package cmd

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/freyjadoc/pkg/api"
	"github.com/ssargent/freyjadoc/pkg/docstore"
	"github.com/ssargent/freyjadoc/pkg/document"
)

// assignments turns name=value arguments into a JSON object. Values that
// are valid JSON are used as is, anything else is taken as a string.
func assignments(args []string) ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, errors.Newf("expected name=value, got %q", arg)
		}
		if json.Valid([]byte(value)) {
			obj[name] = json.RawMessage(value)
			continue
		}
		quoted, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		obj[name] = quoted
	}
	return json.Marshal(obj)
}

func parseID(s string) (ksuid.KSUID, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return ksuid.Nil, errors.Wrapf(err, "invalid document id %q", s)
	}
	return id, nil
}

// resolveID parses s, or allocates an id from store when s is "new".
func resolveID(store *docstore.Store, s string) (ksuid.KSUID, error) {
	if s == "new" {
		return store.NewID(), nil
	}
	return parseID(s)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

// load returns the stored document when merging, or a new empty one.
func load(cmd *cobra.Command, store *docstore.Store, typeName string, id ksuid.KSUID, merge bool) (*document.StructValue, error) {
	if merge {
		return store.Get(cmd.Context(), typeName, id)
	}
	st, err := store.Type(typeName)
	if err != nil {
		return nil, err
	}
	return document.NewStructValue(st), nil
}

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <type> <id|new> name=value...",
	Short: "Store a document",
	Long: `Store a document, replacing any previous document with the same id.
Use "new" as the id to generate one. With --merge only the named fields
change; a value of null removes a field.

Examples:
  freyjadoc put note new title=groceries 'tags=["home"]' pinned=true
  freyjadoc put note 2Hx... --merge body=null`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := assignments(args[2:])
		if err != nil {
			return err
		}
		fields, err := api.DecodeFields(body)
		if err != nil {
			return err
		}
		merge, _ := cmd.Flags().GetBool("merge")

		return withStore(func(store *docstore.Store) error {
			id, err := resolveID(store, args[1])
			if err != nil {
				return err
			}
			v, err := load(cmd, store, args[0], id, merge)
			if err != nil {
				return err
			}
			if err := api.ApplyFields(v, fields); err != nil {
				return err
			}
			token, err := store.Put(cmd.Context(), id, v)
			if err != nil {
				return err
			}
			cmd.Printf("Stored %s %s (sync token %d)\n", args[0], id, token)
			return nil
		})
	},
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <type> <id>",
	Short: "Print a document as JSON",
	Long: `Print a document as JSON. Only the fields named by --fields are
decoded.

Example:
  freyjadoc get note 2Hx... --fields title,pinned`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		names, _ := cmd.Flags().GetStringSlice("fields")

		return withStore(func(store *docstore.Store) error {
			v, err := store.Get(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			fields, err := api.FieldValues(v, names...)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.DocumentResponse{ID: id.String(), Type: args[0], Fields: fields})
		})
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *docstore.Store) error {
			if err := store.Delete(cmd.Context(), id); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", id)
			return nil
		})
	},
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Show the stored blob behind a document",
	Long: `Show sync token, compression and sizes of the blob stored under an id,
and whether its payload passes the checksum.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *docstore.Store) error {
			info, err := store.Inspect(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		})
	},
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every stored blob against its checksum",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *docstore.Store) error {
			var total, damaged int
			err := store.Scan(cmd.Context(), func(info docstore.Info) error {
				total++
				if !info.Valid {
					damaged++
					cmd.Printf("damaged: %s\n", info.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
			cmd.Printf("%d blobs checked, %d damaged\n", total, damaged)
			if damaged > 0 {
				return errors.Mark(errors.Newf("%d damaged blobs", damaged), docstore.ErrCorruption)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, deleteCmd, inspectCmd, verifyCmd)
	putCmd.Flags().Bool("merge", false, "Update the named fields of an existing document")
	getCmd.Flags().StringSlice("fields", nil, "Comma separated field names to print")
}
