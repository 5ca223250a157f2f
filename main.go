package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/treemana/dnstun/admin"
	"github.com/treemana/dnstun/cache"
	"github.com/treemana/dnstun/config"
	"github.com/treemana/dnstun/log"
	"github.com/treemana/dnstun/proxy"
	"github.com/treemana/dnstun/report"
	"github.com/treemana/dnstun/upstream"
)

func main() {
	path := flag.String("c", config.DefaultPath, "configuration file")
	flag.Parse()

	option, err := config.Load(*path)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// init log
	if err = initLog(option); err != nil {
		os.Exit(1)
	}
	defer func() {
		log.Sync()
		time.Sleep(100 * time.Millisecond)
	}()

	if err = run(option); err != nil {
		log.Sugar.Error(err)
		log.Sync()
		os.Exit(1)
	}
}

func run(option *config.Config) error {
	up, err := upstream.New(upstream.Config{
		Mode:       option.Transport(),
		Address:    option.Upstream.Address,
		Timeout:    option.Upstream.Timeout,
		ServerName: option.Upstream.ServerName,
	})
	if err != nil {
		return err
	}

	rc := cache.New()

	var server *proxy.Server
	if server, err = proxy.New(proxy.Config{
		Address:      option.Server.Address,
		Cipher:       option.Cipher(),
		TCP:          option.Server.TCP,
		ReplyFromDst: option.Server.ReplyFromDst,
		MaxInflight:  option.Server.MaxInflight,
		Timeout:      option.Upstream.Timeout,
	}, up, rc, report.New(option.Log.On, option.Log.Dump)); err != nil {
		return err
	}

	var adm *admin.Server
	if len(option.Admin.Address) > 0 {
		if adm, err = admin.New(option.Admin.Address, admin.NewRouter(server, rc)); err != nil {
			server.Stop()
			return err
		}
		adm.Start()
	}

	log.Sugar.Infof("mode %s, listen %s, upstream %s %s", option.Mode, server.Addr(), up.Mode(), up.Address())
	server.Start()

	// dnstun is running until os exit
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sc
	log.Sugar.Infof("signal %d %s", s, s)

	if adm != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		adm.Stop(ctx)
		cancel()
	}
	server.Stop()

	return nil
}

func initLog(option *config.Config) error {
	lc := log.Config{
		File:       option.Log.File,
		STDOUT:     option.Log.STDOUT,
		MaxAge:     option.Log.MaxAge,
		MaxSize:    option.Log.MaxSize,
		MaxBackups: option.Log.MaxBackups,
		JsonFormat: option.Log.JSON,
	}

	if option.Log.Verbose {
		lc.Level = -1
	}

	if err := log.Init(lc); err != nil {
		fmt.Println("log init error", err)
		return err
	}

	return nil
}
