// Package main hosts the unbloq entrypoint.
//
// Architecture overview:
//   - Resolution API (unbloq serve): internal/api.Server exposes GET /archive?url=..., health and metrics. The
//     target is normalized, looked up in the resolution cache (Redis, or memory when REDIS_URL is unset) and, on a
//     miss, resolved by scraping the archive.ph listing page. A found snapshot answers 200 and is cached for an hour;
//     anything else answers 201 with a submission link and is never cached.
//   - Scrape layer: by default every listing is rendered in an isolated chromedp browser context drawn from a pool
//     bounded by scrape.max_parallel. In probe mode a colly GET goes first and the heuristic detector decides whether
//     to escalate to the browser. A per-host token bucket keeps the archive host from being hammered.
//   - Redirect site (unbloq frontend): internal/frontend serves the landing page and turns /<url> into a 307 to the
//     archive link, calling the Resolution API at SCRAPE_URL through internal/apiclient.
//   - Forum bot (unbloq sweep): internal/sweep searches old.reddit.com through internal/forum/reddit, skips posts it
//     has seen (memory, Redis set or Postgres table), pre-warms the archive through the API, comments, and backs
//     off for exactly as long as the forum asks when it rate-limits the account.
//
// Operational notes:
//   - One browser process per command; each resolution gets its own browser context and deadline. Shutdown is
//     driven by SIGINT/SIGTERM cancelling the command context, after which the App container closes the browser,
//     Redis and Postgres.
//   - Configuration comes from Viper: an optional --config file plus UNBLOQ_<SECTION>_<KEY> variables. PORT,
//     SCRAPE_URL, REDIS_URL and DATABASE_URL are honoured for existing deployments.
//   - Observability: zap logs carry request ids, targets and post URLs; Prometheus collectors cover HTTP traffic,
//     resolutions, cache lookups, scrape latency, active browser sessions and sweep outcomes.
//
// Quick checklist:
//   - Run the API locally: go run . serve (needs Chrome or Chromium on PATH, or scrape.exec_path).
//   - Run the site: SCRAPE_URL=http://localhost:8080 go run . frontend
//   - Run the bot: UNBLOQ_BOT_USERNAME=... UNBLOQ_BOT_PASSWORD=... go run . sweep --sort top
package main
