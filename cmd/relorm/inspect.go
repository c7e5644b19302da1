package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relorm/relorm/entitymap"
	"github.com/relorm/relorm/internal/cli/ui"
)

var (
	inspectFormat  string
	inspectNoColor bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <reports.json>",
	Short: "Inspect entity map classification reports",
	Long: `Read a JSON file of entity map reports (as exported by
Directory.Reports) and print each mapped class with its table, attributes,
and classified relations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading reports: %w", err)
		}

		var reports []entitymap.Report
		if err := json.Unmarshal(data, &reports); err != nil {
			return fmt.Errorf("parsing reports: %w", err)
		}

		switch inspectFormat {
		case "json":
			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		case "table":
			renderReports(cmd, reports)
			return nil
		default:
			return fmt.Errorf("unknown format %q (want table or json)", inspectFormat)
		}
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "table", "output format: table or json")
	inspectCmd.Flags().BoolVar(&inspectNoColor, "no-color", false, "disable colored output")
}

func renderReports(cmd *cobra.Command, reports []entitymap.Report) {
	w := cmd.OutOrStdout()

	for i, report := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		ui.Header(w, report.Class, inspectNoColor)

		kv := ui.NewKeyValueTable(w, inspectNoColor)
		kv.AddRow("mapping", report.Mapping)
		kv.AddRow("table", report.Table)
		kv.AddRow("primary_key", report.PrimaryKey)
		kv.AddRow("attributes", strings.Join(report.Attributes, ", "))
		if len(report.Embeddables) > 0 {
			kv.AddRow("embeddables", strings.Join(report.Embeddables, ", "))
		}
		if len(report.EagerLoads) > 0 {
			kv.AddRow("eager_loads", strings.Join(report.EagerLoads, ", "))
		}
		kv.Render()

		if len(report.Relations) == 0 {
			continue
		}

		fmt.Fprintln(w)
		table := ui.NewTable(w, []string{"RELATION", "KIND", "CARDINALITY", "OWNERSHIP", "TARGET", "FLAGS"}, inspectNoColor)
		for _, rel := range report.Relations {
			table.AddRow(rel.Name, rel.Kind, rel.Cardinality, rel.KeyOwnership, rel.Target, relationFlags(rel))
		}
		table.Render()
	}
}

func relationFlags(rel entitymap.RelationReport) string {
	var flags []string
	if rel.Pivot {
		flags = append(flags, "pivot")
	}
	if rel.Polymorphic {
		flags = append(flags, "polymorphic")
	}
	if rel.Embedded {
		flags = append(flags, "embedded")
	}
	if rel.Eager {
		flags = append(flags, "eager")
	}
	if rel.ProxyIneligible {
		flags = append(flags, "no-proxy")
	}
	if rel.Dynamic {
		flags = append(flags, "dynamic")
	}
	return strings.Join(flags, ",")
}
