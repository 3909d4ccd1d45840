package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/classweave/internal/advice"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <file>...",
	Short: "Validate rule files and print the ordered advice registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadRules(args)
		if err != nil {
			return err
		}
		reg := advice.NewRegistry(logger, nil, loaded.Advice...)
		return writeRegistry(cmd.OutOrStdout(), reg, len(loaded.Mixins))
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

// writeRegistry lists the advice in registry order. Advice sharing a metric
// label print the same metric ordinal.
func writeRegistry(w io.Writer, reg *advice.Registry, mixins int) error {
	var b bytes.Buffer
	for i, d := range reg.All() {
		p := d.Pointcut()
		params := "(" + strings.Join(p.MethodParameterTypes, ", ") + ")"
		fmt.Fprintf(&b, "%3d  %-24s %s.%s%s\n", i+1, d.MetricName(), p.ClassName, p.MethodName, params)
		var hooks []string
		for _, role := range advice.Roles {
			if d.Hook(role) != nil {
				hooks = append(hooks, role.String())
			}
		}
		fmt.Fprintf(&b, "     advice %s metric#%d hooks=%s", d.AdviceType(), reg.Metric(d).Ordinal(), strings.Join(hooks, ","))
		if d.Reweavable() {
			b.WriteString(" reweavable")
		}
		if t := d.TravelerType(); t != "" {
			fmt.Fprintf(&b, " traveler=%s", t)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d advice, %d mixins\n", reg.Len(), mixins)
	_, err := w.Write(b.Bytes())
	return err
}
