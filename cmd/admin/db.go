package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "only rows at or after this tick (ticks/events/plants)")
	limit := fs.Int("limit", 20, "result limit")
	severity := fs.String("severity", "", "severity filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "garden.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,label,seed,actors,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Path       string `json:"path"`
				Label      string `json:"label,omitempty"`
				Seed       int64  `json:"seed"`
				Actors     int    `json:"actors"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Label, &r.Seed, &r.Actors, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,removes,updates,adds,events FROM ticks WHERE tick>=? ORDER BY tick DESC LIMIT ?`, int64(*sinceTick), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Digest  string `json:"digest"`
				Removes int    `json:"removes"`
				Updates int    `json:"updates"`
				Adds    int    `json:"adds"`
				Events  int    `json:"events"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Removes, &r.Updates, &r.Adds, &r.Events); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "events":
		q := `SELECT tick,severity,importance,message,x,y FROM events WHERE tick>=? ORDER BY id DESC LIMIT ?`
		qargs := []any{int64(*sinceTick), *limit}
		if strings.TrimSpace(*severity) != "" {
			q = `SELECT tick,severity,importance,message,x,y FROM events WHERE tick>=? AND severity=? ORDER BY id DESC LIMIT ?`
			qargs = []any{int64(*sinceTick), strings.TrimSpace(*severity), *limit}
		}
		rows, err := db.Query(q, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64         `json:"tick"`
				Severity   string        `json:"severity"`
				Importance float64       `json:"importance"`
				Message    string        `json:"message"`
				X          sql.NullInt64 `json:"x"`
				Y          sql.NullInt64 `json:"y"`
			}
			if err := rows.Scan(&r.Tick, &r.Severity, &r.Importance, &r.Message, &r.X, &r.Y); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "plants":
		rows, err := db.Query(`SELECT tick,seq,session_id,x,y,req_id FROM plants WHERE tick>=? ORDER BY tick DESC, seq ASC LIMIT ?`, int64(*sinceTick), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Seq       int    `json:"seq"`
				SessionID string `json:"session_id"`
				X         int    `json:"x"`
				Y         int    `json:"y"`
				ReqID     string `json:"req_id"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.X, &r.Y, &r.ReqID); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "seeds":
		rows, err := db.Query(`SELECT id,label,genome,sex,source_id,attract,toxicity,tick,x,y,created_at FROM seed_bank ORDER BY attract DESC, id ASC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID        int64           `json:"id"`
				Label     string          `json:"label"`
				Genome    json.RawMessage `json:"genome"`
				Sex       string          `json:"sex"`
				SourceID  string          `json:"source_id"`
				Attract   float64         `json:"attract"`
				Toxicity  float64         `json:"toxicity"`
				Tick      int64           `json:"tick"`
				X         int             `json:"x"`
				Y         int             `json:"y"`
				CreatedAt string          `json:"created_at"`
			}
			var genome string
			if err := rows.Scan(&r.ID, &r.Label, &genome, &r.Sex, &r.SourceID, &r.Attract, &r.Toxicity, &r.Tick, &r.X, &r.Y, &r.CreatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Genome = json.RawMessage(genome)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-since_tick T] [-limit N] snapshots|ticks|events|plants|seeds|catalogs")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
