package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/query"
)

// parseValue converts a command-line argument into a value of the named type.
func parseValue(typ, raw string) (kv.Value, error) {
	t, err := kv.ParseValueType(typ)
	if err != nil {
		return kv.Value{}, err
	}
	switch t {
	case kv.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return kv.Value{}, fmt.Errorf("INTEGER value: %w", err)
		}
		return kv.IntegerValue(n), nil
	case kv.TypeFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return kv.Value{}, fmt.Errorf("FLOAT value: %w", err)
		}
		return kv.FloatValue(float32(f)), nil
	case kv.TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return kv.Value{}, fmt.Errorf("DOUBLE value: %w", err)
		}
		return kv.DoubleValue(f), nil
	case kv.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return kv.Value{}, fmt.Errorf("BOOLEAN value: %w", err)
		}
		return kv.BoolValue(b), nil
	case kv.TypeByteArray:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return kv.Value{}, fmt.Errorf("BYTE_ARRAY value must be base64: %w", err)
		}
		return kv.BytesValue(b), nil
	}
	return kv.StringValue(raw), nil
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func newPutCmd(opts *rootOptions) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value for the local device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(typ, args[1])
			if err != nil {
				return err
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Put(cmd.Context(), args[0], v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "STRING", "value type: STRING, INTEGER, FLOAT, DOUBLE, BOOLEAN or BYTE_ARRAY")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.store.Get(cmd.Context(), args[0])
			if errors.Is(err, kv.ErrKeyNotFound) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), kv.Entry{Key: args[0], Value: v})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"del"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

// buildProgram parses a JSON call program such as [["equalTo","age",30]].
func buildProgram(calls string) (*query.Query, error) {
	var prog query.Program
	if err := json.Unmarshal([]byte(calls), &prog); err != nil {
		return nil, fmt.Errorf("invalid --calls: %w", err)
	}
	return prog.Build()
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var calls, sqlLike, device string
	var sizeOnly bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query given as builder calls or in rendered form",
		Example: `  kvq query --calls '[["equalTo","$.city","Oslo"],["orderByDesc","$.age"],["limit",10,0]]'
  kvq query --sql '^EQUAL $.city STRING Oslo'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (calls == "") == (sqlLike == "") {
				return errors.New("exactly one of --calls or --sql is required")
			}
			if calls != "" {
				q, err := buildProgram(calls)
				if err != nil {
					return err
				}
				sqlLike = q.SQLLike()
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.store.PlanSQL(sqlLike)
			if err != nil {
				return err
			}
			entries, err := a.store.Execute(cmd.Context(), device, plan)
			if err != nil {
				return err
			}
			if sizeOnly {
				fmt.Fprintln(cmd.OutOrStdout(), len(entries))
				return nil
			}
			if entries == nil {
				entries = []kv.Entry{}
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&calls, "calls", "", "JSON array of builder calls")
	cmd.Flags().StringVar(&sqlLike, "sql", "", "query in rendered form")
	cmd.Flags().StringVar(&device, "for-device", "", "query another device's data")
	cmd.Flags().BoolVar(&sizeOnly, "size", false, "print only the number of results")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var calls string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the rendered form of a call program without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if calls == "" {
				return errors.New("--calls is required")
			}
			q, err := buildProgram(calls)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q.SQLLike())
			return nil
		},
	}
	cmd.Flags().StringVar(&calls, "calls", "", "JSON array of builder calls")
	return cmd
}
