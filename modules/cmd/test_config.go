package cmd

import (
	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
)

// TestConfig reports result of configuration check done on context init
func TestConfig(appCtx *appctx.AppContext) error {

	cc := appCtx.CustomCtx().(*ctx.Ctx)

	appCtx.Log().Infof("The configuration is correct, %d servers defined.", len(cc.Servers))

	return nil
}
