package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/flowbridge/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
		Long: "Keys are dotted paths into config.yaml, for example " +
			"fallback.limit or handover.broker.url. Edits rewrite the file; a running " +
			"gateway picks them up on restart.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a value; maps and lists print as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editRaw(args[0], func(key config.KeyPath, raw map[string]any) (bool, error) {
					v, ok := key.Get(raw)
					if !ok {
						return false, fmt.Errorf("key %q not found", key)
					}
					return false, printValue(cmd.OutOrStdout(), v)
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a value; true, false and numbers are typed",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := parseValue(args[1])
				return editRaw(args[0], func(key config.KeyPath, raw map[string]any) (bool, error) {
					key.Set(raw, value)
					fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, value)
					return true, nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editRaw(args[0], func(key config.KeyPath, raw map[string]any) (bool, error) {
					if !key.Unset(raw) {
						return false, fmt.Errorf("key %q not found", key)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", key)
					return true, nil
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
	)
	return cmd
}

// editRaw loads the raw config, hands it to fn and writes it back when fn
// reports a change.
func editRaw(rawKey string, fn func(key config.KeyPath, raw map[string]any) (bool, error)) error {
	key, err := config.ParseKeyPath(rawKey)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	changed, err := fn(key, raw)
	if err != nil || !changed {
		return err
	}
	return config.SaveRaw(paths.Config, raw)
}

func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue types s as a bool, int or float before falling back to the
// string itself.
func parseValue(s string) any {
	switch {
	case strings.EqualFold(s, "true"):
		return true
	case strings.EqualFold(s, "false"):
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
