package cli

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/issuelog/internal/schema"
)

type kindInfo struct {
	Kind       schema.Kind `json:"kind"`
	LogTable   string      `json:"log_table"`
	ExtTable   string      `json:"ext_table,omitempty"`
	Attributes int         `json:"attributes"`
	Tracked    int         `json:"tracked"`
	Labels     int         `json:"labels"`
}

func describeKinds() []kindInfo {
	kinds := schema.Kinds()
	infos := make([]kindInfo, 0, len(kinds))
	for _, kind := range kinds {
		adapter, err := schema.ForKind(string(kind))
		if err != nil {
			continue
		}
		info := kindInfo{
			Kind:     kind,
			LogTable: adapter.LogTable(),
			ExtTable: adapter.ExtTable(),
		}
		for _, attr := range adapter.Attributes() {
			info.Attributes++
			if attr.Tracked() {
				info.Tracked++
			}
			info.Labels += len(attr.Labels)
		}
		infos = append(infos, info)
	}
	return infos
}

func newKindsCmd(out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List tracker kinds and their snapshot attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := out(cmd)
			infos := describeKinds()
			if done, err := p.JSON(infos); done || err != nil {
				return err
			}
			for _, info := range infos {
				p.Printf("%-16s %-22s %3d attributes, %3d tracked by %d labels\n",
					info.Kind, info.LogTable, info.Attributes, info.Tracked, info.Labels)
			}
			return nil
		},
	}
}
