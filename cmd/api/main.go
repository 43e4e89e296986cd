/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/devin"
    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/github"
    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/openai"
    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/telegram"
    "github.com/parthobardhan/github-devin-dashboard/internal/analysis"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/http"
    "github.com/parthobardhan/github-devin-dashboard/internal/jobs"
    "github.com/parthobardhan/github-devin-dashboard/internal/logger"
    "github.com/parthobardhan/github-devin-dashboard/internal/repo"
    "github.com/parthobardhan/github-devin-dashboard/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)
    if err := repository.Migrate(ctx); err != nil {
        log.Fatal().Err(err).Msg("migrate failed")
    }

    // Adapters
    gh := github.NewClient(cfg, log)
    agent := devin.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Verify configured repositories up front; a typo here would otherwise
    // only surface on the first dashboard request.
    for _, r := range cfg.GitHubRepos {
        ctx2, cancel2 := context.WithTimeout(ctx, 10*time.Second)
        if _, err := gh.Repository(ctx2, r); err != nil {
            log.Error().Err(err).Str("repo", r).Msg("repository validation failed")
        }
        cancel2()
    }

    svc := services.New(cfg, log, repository, gh, agent, llm, tg, analysis.New(log))

    // HTTP server (Gin)
    router := http.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
