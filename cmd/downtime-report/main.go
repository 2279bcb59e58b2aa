// Command downtime-report is the §6 downtime collaborator: it polls one or
// more subgraphs for recent transaction timestamps, runs them through
// internal/indexer.CaptureDowntime, and reports any gap exceeding the
// configured threshold to the console and/or a Telegram chat.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/rainarb/solver/internal/indexer"
	"github.com/rainarb/solver/internal/telegram"
)

const secondsPerDay = 86400

func main() {
	var (
		subgraphFlags []string
		durationDays  int
		thresholdMins int
		tgChatID      string
		tgAPIToken    string
		noConsole     bool
	)

	pflag.StringArrayVarP(&subgraphFlags, "subgraphs", "s", nil, "chain=url, repeatable")
	pflag.IntVarP(&durationDays, "duration", "d", 7, "lookback window in days")
	pflag.IntVarP(&thresholdMins, "threshold", "t", 60, "downtime threshold in minutes")
	pflag.StringVar(&tgChatID, "telegram-chat-id", "", "Telegram chat id to report to")
	pflag.StringVar(&tgAPIToken, "telegram-api-token", "", "Telegram bot API token")
	pflag.BoolVar(&noConsole, "no-console", false, "suppress console output")
	pflag.Parse()

	urlToChain := parseSubgraphs(subgraphFlags)
	if len(urlToChain) == 0 {
		fmt.Fprintln(os.Stderr, "downtime-report: no subgraphs configured (use -s chain=url or SUBGRAPHS)")
		os.Exit(1)
	}

	if v := os.Getenv("DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			durationDays = n
		}
	}
	if v := os.Getenv("THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			thresholdMins = n
		}
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		tgChatID = v
	}
	if v := os.Getenv("TG_TOKEN"); v != "" {
		tgAPIToken = v
	}

	windowEnd := time.Now().Unix()
	windowStart := windowEnd - int64(durationDays)*secondsPerDay
	thresholdSeconds := int64(thresholdMins) * 60

	ctx := context.Background()
	client := indexer.New(0)

	var report strings.Builder
	anyDowntime := false

	for url, chainName := range urlToChain {
		txs, err := client.FetchAll(ctx, url, buildTransactionsQuery(windowStart, windowEnd))
		if err != nil {
			fmt.Fprintf(os.Stderr, "downtime-report: %s: fetch failed: %v\n", chainName, err)
			continue
		}

		timestamps := make([]int64, 0, len(txs))
		for _, tx := range txs {
			ts, err := strconv.ParseInt(tx.Timestamp, 10, 64)
			if err != nil {
				continue
			}
			timestamps = append(timestamps, ts)
		}

		total, occurrences := indexer.CaptureDowntime(timestamps, windowStart, windowEnd, thresholdSeconds)
		if occurrences == 0 {
			continue
		}
		anyDowntime = true
		fmt.Fprintf(&report, "<b>%s</b>: %d downtime occurrence(s), %s total\n",
			chainName, occurrences, time.Duration(total*int64(time.Second)))
	}

	if !anyDowntime {
		if !noConsole {
			fmt.Println("downtime-report: no downtime detected")
		}
		return
	}

	if !noConsole {
		fmt.Print(report.String())
	}

	if tgChatID != "" && tgAPIToken != "" {
		tg := telegram.New(tgAPIToken, tgChatID)
		if err := tg.SendHTML(ctx, report.String()); err != nil {
			fmt.Fprintf(os.Stderr, "downtime-report: telegram send failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// parseSubgraphs merges -s/--subgraphs chain=url flags with the SUBGRAPHS
// env var (a JSON object of url -> chainName, per §6's "subgraphs mapping
// internally is url -> chainName"), returning the merged url -> chainName
// map.
func parseSubgraphs(flags []string) map[string]string {
	out := make(map[string]string)

	if v := os.Getenv("SUBGRAPHS"); v != "" {
		var fromEnv map[string]string
		if err := json.Unmarshal([]byte(v), &fromEnv); err == nil {
			for url, chain := range fromEnv {
				out[url] = chain
			}
		}
	}

	for _, f := range flags {
		chain, url, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[url] = chain
	}

	return out
}

func buildTransactionsQuery(windowStart, windowEnd int64) indexer.QueryBuilder {
	return func(skip int) string {
		return fmt.Sprintf(`{ transactions(skip: %d, where: { timestamp_gte: %d, timestamp_lte: %d }, orderBy: timestamp, orderDirection: asc) { timestamp events { __typename } } }`,
			skip, windowStart, windowEnd)
	}
}
