package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"portfolio-alerts/internal/storage"
)

// Show prints the persisted alert state and, when the backend keeps them,
// the most recent delivered alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore := a.openStore(ctx)
	defer closeStore()

	st, err := store.Load(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("state unreadable; showing empty state")
	}

	var alerts []storage.AlertRecord
	if recorder, ok := store.(storage.AlertRecorder); ok {
		alerts, err = recorder.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
	}

	return writeState(os.Stdout, st, alerts, opts.Limit)
}

func writeState(out io.Writer, st *storage.State, alerts []storage.AlertRecord, limit int) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(writer, "Updated (UTC)\t%s\n\n", st.UpdatedAt.UTC().Format(time.RFC3339))
	}

	fmt.Fprintln(writer, "Symbol\tLast price")
	for _, symbol := range sortedKeys(st.LastPrice) {
		fmt.Fprintf(writer, "%s\t%s\n", symbol, st.LastPrice[symbol].String())
	}
	for _, symbol := range sortedKeys(st.LastIndexValue) {
		fmt.Fprintf(writer, "%s\t%s\n", symbol, st.LastIndexValue[symbol].String())
	}

	fmt.Fprintf(writer, "\nNotified news: %d\n", len(st.NotifiedNews))
	for _, url := range recentURLs(st.NotifiedNews, limit) {
		fmt.Fprintf(writer, "%s\t%s\n", st.NotifiedNews[url].UTC().Format(time.RFC3339), url)
	}

	if len(alerts) > 0 {
		fmt.Fprintln(writer, "\nTime (UTC)\tKind\tSymbol\tRun\tMessage")
		for _, rec := range alerts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\n",
				rec.CreatedAt.UTC().Format(time.RFC3339),
				rec.Kind,
				rec.Symbol,
				rec.RunID,
				sanitizeInline(rec.Message),
			)
		}
	}

	return writer.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// recentURLs returns up to limit URLs, newest first.
func recentURLs(notified map[string]time.Time, limit int) []string {
	urls := sortedKeys(notified)
	sort.SliceStable(urls, func(i, j int) bool {
		return notified[urls[i]].After(notified[urls[j]])
	})
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
