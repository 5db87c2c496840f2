package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/borisblack/scicms-client-sub000/scicms"
	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/types"
)

func (cli *CLI) addItemsCommand() {
	itemsCmd := &cobra.Command{
		Use:   "items [item]",
		Short: "List items or show the attributes of one item",
		Long: `List the items of the schema, or describe the attributes of one item.

Examples:
  scicms items
  scicms items book`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := cli.loadSchema()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return cli.output(cmd.OutOrStdout(), schema.Names())
			}
			item, err := schema.GetByName(args[0])
			if err != nil {
				return WrapError("describe item", err)
			}
			return cli.output(cmd.OutOrStdout(), describeItem(item))
		},
	}
	cli.rootCmd.AddCommand(itemsCmd)
}

// describeItem renders one line per attribute
func describeItem(item *types.Item) map[string]interface{} {
	out := make(map[string]interface{}, len(item.Spec.Attributes))
	for _, name := range item.AttributeNames() {
		attr := item.Spec.Attributes[name]
		parts := []string{string(attr.Type)}
		if attr.Type == types.TypeRelation {
			parts = append(parts, string(attr.RelType), attr.Target)
		}
		if attr.Required {
			parts = append(parts, "required")
		}
		if attr.ReadOnly {
			parts = append(parts, "readOnly")
		}
		if attr.Private {
			parts = append(parts, "private")
		}
		if name == item.TitleAttribute {
			parts = append(parts, "title")
		}
		out[name] = strings.Join(parts, " ")
	}
	return out
}

func (cli *CLI) addConfigCommand() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long:  `Display the configuration merged from flags, SCICMS_* variables and the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := cli.viperInst.AllSettings()
			if file := cli.viperInst.ConfigFileUsed(); file != "" {
				settings["_config_file"] = file
			}
			return cli.output(cmd.OutOrStdout(), settings)
		},
	}
	cli.rootCmd.AddCommand(configCmd)
}

// addQueryFlags adds the filter, sort and paging flags of a read
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("filter", nil, "Column filter attribute=value (repeatable)")
	cmd.Flags().StringArray("sort", nil, "Sort attribute[:asc|:desc] (repeatable)")
	cmd.Flags().Int("page", 0, "Page number")
	cmd.Flags().Int("page-size", 0, "Page size")
	cmd.Flags().String("where", "", "Extra filter document as JSON")
}

func queryRequest(cmd *cobra.Command) (types.QueryRequest, types.Filter, error) {
	var req types.QueryRequest

	filters, _ := cmd.Flags().GetStringArray("filter")
	for _, f := range filters {
		attr, value, ok := strings.Cut(f, "=")
		if !ok || attr == "" {
			return req, nil, NewUsageError("list", "filter", f, "Use --filter attribute=value")
		}
		req.Filters = append(req.Filters, types.FilterSpec{AttributeID: attr, Value: value})
	}

	sorts, _ := cmd.Flags().GetStringArray("sort")
	for _, s := range sorts {
		spec := query.ParseSortToken(s)
		if spec.AttributeID == "" {
			return req, nil, NewUsageError("list", "sort", s, "Use --sort attribute or --sort attribute:desc")
		}
		req.Sort = append(req.Sort, spec)
	}

	req.Pagination.Page, _ = cmd.Flags().GetInt("page")
	req.Pagination.PageSize, _ = cmd.Flags().GetInt("page-size")

	var extra types.Filter
	if where, _ := cmd.Flags().GetString("where"); where != "" {
		if err := json.Unmarshal([]byte(where), &extra); err != nil {
			return req, nil, NewUsageError("list", "where", where, "Pass a JSON object such as {\"pages\":{\"gte\":100}}")
		}
	}
	return req, extra, nil
}

func (cli *CLI) addListCommand() {
	listCmd := &cobra.Command{
		Use:   "list <item>",
		Short: "List records of an item",
		Long: `List records with column filters, sorting and paging.

Filter values are interpreted by attribute type: substrings for text,
numbers, boolean tokens (yes/no, 1/0, on/off), and dates such as 15.03.2024,
03.2024 or 2024 which cover the whole day, month or year.

Examples:
  scicms list book --filter title=dune --sort pages:desc
  scicms list user --filter birthDate=1990 --page 1 --page-size 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, extra, err := queryRequest(cmd)
			if err != nil {
				return err
			}
			return cli.run(cmd, "list "+args[0], func(ctx context.Context, s *session) (interface{}, error) {
				return s.console.Find(ctx, "", args[0], req, extra)
			})
		},
	}
	addQueryFlags(listCmd)
	cli.rootCmd.AddCommand(listCmd)
}

// addDataFlags adds the record value flags of a write
func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("set", nil, "Attribute value attribute=value (repeatable); values are parsed as JSON when possible")
	cmd.Flags().String("data", "", "Record values as a JSON object")
}

// recordData merges --data and --set values
func recordData(cmd *cobra.Command) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if raw, _ := cmd.Flags().GetString("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, NewUsageError(cmd.Name(), "data", raw, "Pass a JSON object")
		}
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, NewUsageError(cmd.Name(), "set", s, "Use --set attribute=value")
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		data[name] = value
	}
	return data, nil
}

// mutationSpec describes one lifecycle command
type mutationSpec struct {
	kind  types.OperationKind
	use   string
	short string
	flags func(cmd *cobra.Command)
}

var mutationSpecs = []mutationSpec{
	{types.OpCreate, "create <item>", "Create a record", addDataFlags},
	{types.OpUpdate, "update <item> <id>", "Update a record", addDataFlags},
	{types.OpDelete, "delete <item> <id>", "Delete a record", addStrategyFlag},
	{types.OpPurge, "purge <item> <id>", "Delete every version and localization of a record", addStrategyFlag},
	{types.OpCreateVersion, "version <item> <id>", "Create a new major revision of a record", func(cmd *cobra.Command) {
		addDataFlags(cmd)
		cmd.Flags().String("major-rev", "", "Revision for items with manual versioning")
		cmd.Flags().String("locale", "", "Locale of the new version")
		cmd.Flags().Bool("copy-relations", false, "Copy collection relations to the new version")
	}},
	{types.OpCreateLocalization, "localize <item> <id>", "Create a locale variant of a record", func(cmd *cobra.Command) {
		addDataFlags(cmd)
		cmd.Flags().String("locale", "", "Locale of the variant")
		cmd.Flags().Bool("copy-relations", false, "Copy collection relations to the variant")
	}},
	{types.OpLock, "lock <item> <id>", "Lock a record for editing", nil},
	{types.OpUnlock, "unlock <item> <id>", "Release the edit lock of a record", nil},
	{types.OpPromote, "promote <item> <id>", "Move a record to a lifecycle state", func(cmd *cobra.Command) {
		cmd.Flags().String("lifecycle", "default", "Lifecycle of the record")
		cmd.Flags().String("state", "", "Target state")
	}},
}

func addStrategyFlag(cmd *cobra.Command) {
	cmd.Flags().String("strategy", string(types.NoAction), "Deleting strategy (NO_ACTION|SET_NULL|CASCADE)")
}

// mutationArgs collects the arguments of kind from positional args and flags
func mutationArgs(cmd *cobra.Command, kind types.OperationKind, args []string) (types.MutationArgs, error) {
	var m types.MutationArgs
	if len(args) > 1 {
		m.ID = args[1]
	}

	switch kind {
	case types.OpCreate, types.OpUpdate, types.OpCreateVersion, types.OpCreateLocalization:
		data, err := recordData(cmd)
		if err != nil {
			return m, err
		}
		m.Data = data
	case types.OpDelete, types.OpPurge:
		strategy, _ := cmd.Flags().GetString("strategy")
		m.DeletingStrategy = types.DeletingStrategy(strings.ToUpper(strategy))
	case types.OpPromote:
		m.Lifecycle, _ = cmd.Flags().GetString("lifecycle")
		m.State, _ = cmd.Flags().GetString("state")
	case types.OpLock, types.OpUnlock:
	}

	if cmd.Flags().Lookup("locale") != nil {
		m.Locale, _ = cmd.Flags().GetString("locale")
	}
	if cmd.Flags().Lookup("major-rev") != nil {
		m.MajorRev, _ = cmd.Flags().GetString("major-rev")
	}
	if cmd.Flags().Lookup("copy-relations") != nil {
		m.CopyCollectionRelations, _ = cmd.Flags().GetBool("copy-relations")
	}
	return m, nil
}

func (cli *CLI) addMutationCommands() {
	for _, spec := range mutationSpecs {
		spec := spec
		nargs := 2
		if spec.kind == types.OpCreate {
			nargs = 1
		}
		cmd := &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				margs, err := mutationArgs(cmd, spec.kind, args)
				if err != nil {
					return err
				}
				return cli.run(cmd, string(spec.kind)+" "+args[0], func(ctx context.Context, s *session) (interface{}, error) {
					res, err := s.console.Mutate(ctx, "", spec.kind, args[0], margs)
					if err != nil {
						return nil, err
					}
					return mutationOutput(spec.kind, res), nil
				})
			},
		}
		if spec.flags != nil {
			spec.flags(cmd)
		}
		cli.rootCmd.AddCommand(cmd)
	}
}

// mutationOutput picks what a write prints
func mutationOutput(kind types.OperationKind, res *scicms.Result) interface{} {
	switch kind {
	case types.OpPurge:
		n := len(res.Removed)
		return &types.Page{Data: res.Removed, Pagination: types.Pagination{Page: 1, PageCount: 1, PageSize: n, Total: n}}
	case types.OpLock, types.OpUnlock:
		out := map[string]interface{}{"success": res.Success}
		for k, v := range res.Data {
			out[k] = v
		}
		return out
	default:
		return res.Data
	}
}

func (cli *CLI) addCompileCommand() {
	compileCmd := &cobra.Command{
		Use:   "compile <operation> <item> [id]",
		Short: "Print the GraphQL document of an operation without running it",
		Long: `Compile an operation and print its GraphQL document and variables.

Operations: find, create, update, delete, purge, createVersion,
createLocalization, lock, unlock, promote. The flags of list and of the
lifecycle commands apply.

Examples:
  scicms compile find book --filter title=dune
  scicms compile update book 42 --set pages=500`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := cli.loadSchema()
			if err != nil {
				return err
			}
			c := scicms.New(schema, nil)

			kind := types.OperationKind(args[0])
			var op *types.Operation
			if kind == types.OpFind {
				req, extra, err := queryRequest(cmd)
				if err != nil {
					return err
				}
				op, err = c.CompileQuery(args[1], req, extra)
				if err != nil {
					return WrapError("compile", err)
				}
			} else {
				if !isMutation(kind) {
					return NewUsageError("compile", "operation", args[0], "Use one of: find, "+mutationNames())
				}
				margs, err := mutationArgs(cmd, kind, args[1:])
				if err != nil {
					return err
				}
				op, err = c.CompileMutation(kind, args[1], margs)
				if err != nil {
					return WrapError("compile", err)
				}
			}

			return cli.output(cmd.OutOrStdout(), compiledOutput(cli.viperInst.GetString("format"), op))
		},
	}
	addQueryFlags(compileCmd)
	addDataFlags(compileCmd)
	addStrategyFlag(compileCmd)
	compileCmd.Flags().String("major-rev", "", "Revision for items with manual versioning")
	compileCmd.Flags().String("locale", "", "Locale")
	compileCmd.Flags().Bool("copy-relations", false, "Copy collection relations")
	compileCmd.Flags().String("lifecycle", "default", "Lifecycle of the record")
	compileCmd.Flags().String("state", "", "Target state")
	cli.rootCmd.AddCommand(compileCmd)
}

func isMutation(kind types.OperationKind) bool {
	for _, k := range types.MutationKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func mutationNames() string {
	names := make([]string, len(types.MutationKinds))
	for i, k := range types.MutationKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// compiledOutput prints the raw document in table mode
func compiledOutput(format string, op *types.Operation) interface{} {
	if format == "json" || format == "yaml" {
		return map[string]interface{}{
			"field":     op.Field,
			"document":  op.Document,
			"variables": op.Variables,
		}
	}
	lines := strings.Split(strings.TrimRight(op.Document, "\n"), "\n")
	vars, err := json.MarshalIndent(op.Variables, "", "  ")
	if err != nil {
		vars = []byte(fmt.Sprint(op.Variables))
	}
	lines = append(lines, "", "variables:")
	return append(lines, strings.Split(string(vars), "\n")...)
}
