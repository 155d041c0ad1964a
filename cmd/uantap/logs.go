package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"uantap/pkg/log"
)

// timeFormats are tried in order when a time spec is not a duration.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimeSpec accepts a duration relative to now ("1h", "30m") or an
// absolute timestamp in one of timeFormats.
func parseTimeSpec(spec string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range timeFormats {
		if ts, err := time.ParseInLocation(layout, spec, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time specification %q: use a duration (1h, 30m) or a timestamp (2024-05-01T15:04:05Z)", spec)
}

var logsCommand = &cli.Command{
	Name:      "logs",
	Usage:     "read entries from the SQLite log database",
	UsageText: "uantap logs [-f PATH] [--last|--since|--between] [options]",
	Description: `Modes (one at a time, --last is the default):
   --last      the most recent --count entries
   --since     entries since --start
   --between   entries between --start and --end
Times are durations back from now ("90m") or timestamps ("2024-05-01 10:00:00").`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "dbfile",
			Aliases: []string{"f"},
			Usage:   "log database `PATH` (default ~/.uantap/uantap.db)",
		},
		&cli.BoolFlag{Name: "pretty", Aliases: []string{"p"}, Usage: "print one readable line per entry instead of raw JSON"},
		&cli.BoolFlag{Name: "last", Usage: "mode: most recent entries (default)"},
		&cli.BoolFlag{Name: "since", Usage: "mode: entries since --start"},
		&cli.BoolFlag{Name: "between", Usage: "mode: entries between --start and --end"},
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 100, Usage: "entries for --last `NUMBER`"},
		&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "start `TIME_SPEC`"},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "end `TIME_SPEC`"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: log.DefaultLimit, Usage: "max entries for --since/--between `NUMBER`"},
	},
	Action: logsCmd,
}

func logsCmd(c *cli.Context) error {
	dbFile := c.String("dbfile")
	if dbFile == "" {
		path, err := log.DefaultDBPath("uantap")
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		dbFile = path
	}
	isLast, isSince, isBetween := c.Bool("last"), c.Bool("since"), c.Bool("between")

	modes := 0
	for _, set := range []bool{isLast, isSince, isBetween} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return cli.Exit("Error: only one of --last, --since, --between can be given", 1)
	}
	if modes == 0 {
		isLast = true
	}

	if _, err := os.Stat(dbFile); err != nil {
		return cli.Exit(fmt.Sprintf("Error: log database %s: %v", dbFile, err), 1)
	}
	if err := log.Init(dbFile); err != nil {
		return cli.Exit(fmt.Sprintf("Error opening log database: %v", err), 1)
	}
	defer log.Close()

	now := time.Now()
	var (
		results []log.LogEntry
		err     error
	)
	switch {
	case isLast:
		count := c.Int("count")
		if count <= 0 {
			return cli.Exit("Error: --count must be positive", 1)
		}
		results, err = log.GetLastNLogs(count)
	case isSince:
		if !c.IsSet("start") {
			return cli.Exit("Error: --since needs --start", 1)
		}
		start, perr := parseTimeSpec(c.String("start"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", perr), 1)
		}
		results, err = log.GetLogsSince(start, c.Int("limit"))
	case isBetween:
		if !c.IsSet("start") || !c.IsSet("end") {
			return cli.Exit("Error: --between needs --start and --end", 1)
		}
		start, perr := parseTimeSpec(c.String("start"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", perr), 1)
		}
		end, perr := parseTimeSpec(c.String("end"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", perr), 1)
		}
		if start.After(end) {
			fmt.Fprintf(os.Stderr, "Warning: start %s is after end %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		results, err = log.GetLogsBetween(start, end, c.Int("limit"))
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error retrieving logs: %v", err), 1)
	}

	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No log entries found.")
		return nil
	}
	for _, entry := range results {
		if c.Bool("pretty") {
			printPretty(os.Stdout, entry)
		} else {
			fmt.Println(entry.LogData)
		}
	}
	return nil
}

// printPretty writes "time LEVEL message key=value..." for entry, falling
// back to the raw JSON when it does not decode.
func printPretty(w io.Writer, entry log.LogEntry) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(entry.LogData), &fields); err != nil {
		fmt.Fprintln(w, entry.LogData)
		return
	}
	ts, _ := fields["time"].(string)
	if ts == "" {
		ts = entry.InsertedAt.Format(time.RFC3339)
	}
	level, _ := fields["level"].(string)
	msg, _ := fields["message"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "message")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", ts, strings.ToUpper(level), msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(w, b.String())
}
