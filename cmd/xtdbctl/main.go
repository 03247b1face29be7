package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	xtdb "github.com/pyxtdb/xtdb-sdk/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"olympos.io/encoding/edn"
)

var rootCmd = &cobra.Command{
	Use:           "xtdbctl",
	Short:         "Command line client for an XTDB node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", "", "XTDB node URL (env XTDB_ENDPOINT)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log every request to stderr")
	_ = viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the node status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <edn-query>",
		Short: "Evaluate a Datalog query given as an EDN map",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().String("in-args", "", "EDN vector bound to the :in clause")
	queryCmd.Flags().String("valid-time", "", "Valid time of the database value (RFC 3339)")
	queryCmd.Flags().String("tx-time", "", "Transaction time of the database value (RFC 3339)")
	queryCmd.Flags().Int64("tx-id", -1, "Transaction id of the database value")
	queryCmd.Flags().String("format", "json", "Output format: json or arrow (base64 Arrow IPC)")

	putCmd := &cobra.Command{
		Use:   "put <json-document>...",
		Short: "Put documents in a single transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPut,
	}
	putCmd.Flags().String("valid-from", "", "Start of the valid time range (RFC 3339)")
	putCmd.Flags().String("valid-until", "", "End of the valid time range (RFC 3339), requires --valid-from")
	putCmd.Flags().Bool("await", false, "Wait until the transaction is indexed")

	evictCmd := &cobra.Command{
		Use:   "evict <id>...",
		Short: "Evict entities and their whole history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ids := make([]any, len(args))
			for i, id := range args {
				ids[i] = id
			}
			receipt, err := c.EvictAll(ids).Submit(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}

	entityCmd := &cobra.Command{
		Use:   "entity <id>",
		Short: "Show the document of an entity, or its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			history, _ := cmd.Flags().GetBool("history")
			if history {
				withDocs, _ := cmd.Flags().GetBool("with-docs")
				entries, err := c.EntityHistory(cmd.Context(), xtdb.Params{
					"eid":        args[0],
					"sort-order": "asc",
					"with-docs":  withDocs,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}

			doc, err := c.Entity(cmd.Context(), xtdb.Params{"eid": args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	entityCmd.Flags().Bool("history", false, "Show every version of the entity")
	entityCmd.Flags().Bool("with-docs", false, "Include documents in the history")

	txLogCmd := &cobra.Command{
		Use:   "tx-log",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			params := xtdb.Params{}
			if after, _ := cmd.Flags().GetInt64("after-tx-id"); after >= 0 {
				params["after-tx-id"] = after
			}
			if withOps, _ := cmd.Flags().GetBool("with-ops"); withOps {
				params["with_opsQ"] = true
			}
			entries, err := c.TxLog(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	txLogCmd.Flags().Int64("after-tx-id", -1, "Only list transactions after this id")
	txLogCmd.Flags().Bool("with-ops", false, "Include transaction operations")

	rootCmd.AddCommand(statusCmd, queryCmd, putCmd, evictCmd, entityCmd, txLogCmd)
}

func newClient() (*xtdb.Client, error) {
	config := xtdb.LoadConfig()
	if config == nil {
		config = &xtdb.Config{Endpoint: xtdb.DefaultEndpoint}
	}
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		config.Endpoint = endpoint
	}
	if viper.GetBool("verbose") {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		config.Logger = logger
	}
	return xtdb.NewClient(config), nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	params := xtdb.Params{}
	for _, name := range []string{"valid-time", "tx-time"} {
		if s, _ := cmd.Flags().GetString(name); s != "" {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
			params[name] = t
		}
	}
	if txID, _ := cmd.Flags().GetInt64("tx-id"); txID >= 0 {
		params["tx-id"] = txID
	}

	req := xtdb.QueryRequest{Query: args[0], Params: params}
	if inArgs, _ := cmd.Flags().GetString("in-args"); inArgs != "" {
		req.InArgs = inArgs
	}
	result, err := c.RunQuery(cmd.Context(), req)
	if err != nil {
		return err
	}
	if result.Failure != nil {
		_ = printJSON(cmd.ErrOrStderr(), result.Failure)
		return fmt.Errorf("query failed")
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return printJSON(cmd.OutOrStdout(), result.Tuples)
	case "arrow":
		record, err := xtdb.ToArrowRecord(nil, findColumns(args[0]), result.Tuples)
		if err != nil {
			return err
		}
		defer record.Release()
		payload, err := xtdb.EncodeArrowIPC([]arrow.Record{record})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// findColumns names the result columns after the :find terms of an EDN query map.
func findColumns(query string) []string {
	var q map[any]any
	if err := edn.UnmarshalString(strings.TrimSpace(query), &q); err != nil {
		return nil
	}
	terms, _ := q[edn.Keyword("find")].([]any)
	columns := make([]string, len(terms))
	for i, term := range terms {
		b, err := edn.Marshal(term)
		if err != nil {
			columns[i] = fmt.Sprint(term)
			continue
		}
		columns[i] = string(b)
	}
	return columns
}

func runPut(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	var valid xtdb.Valid
	if s, _ := cmd.Flags().GetString("valid-from"); s != "" {
		if valid.From, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("--valid-from: %w", err)
		}
	}
	if s, _ := cmd.Flags().GetString("valid-until"); s != "" {
		if valid.Until, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("--valid-until: %w", err)
		}
	}

	docs := make([]xtdb.Document, 0, len(args))
	for _, arg := range args {
		var doc xtdb.Document
		if err := json.Unmarshal([]byte(arg), &doc); err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		if _, ok := doc["xt/id"]; !ok {
			return fmt.Errorf("document has no xt/id: %s", arg)
		}
		docs = append(docs, doc)
	}

	receipt, err := c.PutAll(docs, valid).Submit(cmd.Context())
	if err != nil {
		return err
	}
	if await, _ := cmd.Flags().GetBool("await"); await {
		if _, err := c.AwaitTx(cmd.Context(), xtdb.Params{"tx-id": receipt.TxID}); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), receipt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
