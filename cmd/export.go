package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/export"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <bids|awards>",
	Short: "Write stored records to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, ok := model.ParseKind(args[0])
		if !ok {
			return eris.Errorf("unknown record kind %q (want bids or awards)", args[0])
		}
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")
		if out == "" {
			out = string(kind) + "s.xlsx"
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RecordFilter{Limit: limit}
		var (
			wb    *xlsx.File
			count int
		)
		switch kind {
		case model.KindBidNotice:
			bids, err := st.ListBids(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "export bids")
			}
			count = len(bids)
			wb, err = export.BidsWorkbook(bids)
			if err != nil {
				return err
			}
		case model.KindAward:
			awards, err := st.ListAwards(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "export awards")
			}
			count = len(awards)
			wb, err = export.AwardsWorkbook(awards)
			if err != nil {
				return err
			}
		}

		if err := wb.Save(out); err != nil {
			return eris.Wrapf(err, "export: save %s", out)
		}
		zap.L().Info("export written", zap.String("kind", string(kind)), zap.Int("records", count), zap.String("path", out))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output file (default <kind>s.xlsx)")
	exportCmd.Flags().Int("limit", 1000, "maximum records to export, newest first")
	rootCmd.AddCommand(exportCmd)
}
