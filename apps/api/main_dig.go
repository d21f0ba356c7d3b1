package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"

	dig_container "github.com/avsnarang/scholarise/apps/api/di/dig"
	echoapi "github.com/avsnarang/scholarise/apps/api/echo"
	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	appfs "github.com/avsnarang/scholarise/fs"
)

func startWithDig() {
	c := dig_container.New()
	err := c.Invoke(func(conf *core.Config, logger core.Logger, cleanup *dig_container.Cleanup, server *echoapi.Server) {
		defer cleanup.Run()
		run(conf, logger, server)
	})
	if err != nil {
		log.Fatal(err)
	}
}

func run(conf *core.Config, logger core.Logger, server *echoapi.Server) {
	logger.Info(fmt.Sprintf("scholarise api %s starting (%s)", conf.Build, conf.Env))
	defer logger.Info("scholarise api stopped")

	core.ParseEmailTemplates(appfs.FS, logger, conf.Debug)
	user.LoadCommonPasswords(appfs.FS, logger)

	serveDebug(conf, logger)

	go server.Start()
	logger.Info("api listening on " + conf.Server.Address)

	select {
	case err := <-server.Errors():
		logger.Error("api server failed", err)
	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v received, draining requests", sig))
		drain(conf, logger, server)
	}
}

// serveDebug exposes /debug/pprof and /debug/vars on the debug address.
func serveDebug(conf *core.Config, logger core.Logger) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error("debug server closed", err)
		}
	}()
}

// drain gives in-flight requests until the shutdown timeout, then closes the listener outright.
func drain(conf *core.Config, logger core.Logger, server *echoapi.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	err := server.Shutdown(ctx)
	if err == nil {
		return
	}
	logger.Error("graceful shutdown failed", err)
	if err := server.Close(); err != nil {
		logger.Error("forced shutdown failed", err)
	}
}
