package main

import (
	"fmt"
	"os"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	appfs "github.com/avsnarang/scholarise/fs"
	logsvc "github.com/avsnarang/scholarise/services/logger"
	"github.com/avsnarang/scholarise/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewZap(conf, "admin"), conf)
	defer logger.Sync()

	user.LoadCommonPasswords(appfs.FS, logger)

	db, err := database.Open(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cli := newCommandLine(conf, db, logger)
	err = cli.rootCmd().Execute()
	_ = db.Close()
	if err != nil {
		os.Exit(1)
	}
}
