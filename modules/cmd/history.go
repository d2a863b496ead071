package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
	"backup-master/modules/backend/history"
)

// History prints recorded backup runs or logs of one of them
func History(appCtx *appctx.AppContext) error {

	cc := appCtx.CustomCtx().(*ctx.Ctx)
	p := cc.CmdParams.(*ctx.HistoryCmd)

	hs, err := openHistory(cc)
	if err != nil {
		return err
	}
	if hs == nil {
		return fmt.Errorf("history is disabled, set `history_db` in config")
	}
	defer hs.Close()

	c := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if p.Logs > 0 {
		ls, err := hs.Logs(c, p.Logs)
		if err != nil {
			return err
		}
		for _, l := range ls {
			fmt.Fprintf(w, "%s\t%s\n", l.Timestamp.Local().Format(time.DateTime), l.Message)
		}
		return nil
	}

	rs, err := hs.List(c, p.Server, p.Limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "ID\tSERVER\tTYPE\tSTARTED\tDURATION\tSTATUS\tARCHIVE")
	for _, r := range rs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.ServerName, r.BackupType, r.StartTime.Local().Format(time.DateTime), duration(r), r.Status, r.ZipPath)
	}

	return nil
}

func duration(r history.Record) string {
	if !r.EndTime.Valid {
		return "-"
	}
	return r.EndTime.Time.Sub(r.StartTime).Round(time.Second).String()
}
