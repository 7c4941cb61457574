// Package catalog persists reduction provenance in sqlite: one row per run,
// one per input frame with its outcome, and one per master built or loaded.
// The catalog answers "which master calibrated this image" months after the
// run directory has been archived.
package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/reduce"
)

// Run statuses stored in reduce_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one invocation of the reduction pipeline. Timestamps are
// nanoseconds since the epoch.
type Run struct {
	RunID         string `json:"run_id"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    int64  `json:"finished_at,omitempty"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	DarksDir      string `json:"darks_dir,omitempty"`
	FlatsDir      string `json:"flats_dir,omitempty"`
	LightsDir     string `json:"lights_dir,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
	MissingMaster string `json:"missing_master,omitempty"`
	NonFinite     string `json:"non_finite,omitempty"`

	Warnings        int   `json:"warnings"`
	CorrectedLights int   `json:"corrected_lights"`
	SkippedLights   int   `json:"skipped_lights"`
	FailedLights    int   `json:"failed_lights"`
	NonFinitePixels int64 `json:"non_finite_pixels"`
}

// RunFrame is the recorded outcome of one input frame within a run.
type RunFrame struct {
	FrameID   int64  `json:"frame_id"`
	RunID     string `json:"run_id"`
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	GroupKey  string `json:"group_key,omitempty"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Output    string `json:"output,omitempty"`
	DarkUsed  string `json:"dark_used,omitempty"`
	FlatUsed  string `json:"flat_used,omitempty"`
	NonFinite int    `json:"non_finite"`
}

// RunMaster is a master frame a run built or loaded. Stats holds the
// pixel statistics computed when the master was recorded; a master
// stored without pixel data in memory leaves them at N = 0.
type RunMaster struct {
	MasterID int64            `json:"master_id"`
	RunID    string           `json:"run_id"`
	Kind     string           `json:"kind"`
	GroupKey string           `json:"group_key"`
	Name     string           `json:"name"`
	Path     string           `json:"path,omitempty"`
	Combined int              `json:"combined"`
	Loaded   bool             `json:"loaded"`
	Stats    frame.ImageStats `json:"stats"`
}

// Catalog wraps the provenance database. Safe for concurrent use; sqlite
// serializes writers and busy retries paper over lock contention from a
// concurrently open report viewer.
type Catalog struct {
	*sql.DB
}

// Open opens or creates the catalog at path and applies any pending
// migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog %s: %s: %w", path, pragma, err)
		}
	}
	c := &Catalog{db}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// StartRun inserts a new run row. A missing RunID gets a fresh UUID, a zero
// StartedAt becomes the current time, and an empty Status defaults to
// running.
func (c *Catalog) StartRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	return retryOnBusy(func() error {
		_, err := c.Exec(`
			INSERT INTO reduce_runs (
				run_id, started_at, level, status,
				darks_dir, flats_dir, lights_dir, output_dir,
				missing_master, non_finite
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.StartedAt, run.Level, run.Status,
			run.DarksDir, run.FlatsDir, run.LightsDir, run.OutputDir,
			run.MissingMaster, run.NonFinite,
		)
		return err
	})
}

// FinishRun updates the terminal state and counters of a run.
func (c *Catalog) FinishRun(run *Run) error {
	return retryOnBusy(func() error {
		res, err := c.Exec(`
			UPDATE reduce_runs SET
				finished_at = ?, status = ?, warnings = ?,
				corrected_lights = ?, skipped_lights = ?, failed_lights = ?,
				non_finite_pixels = ?
			WHERE run_id = ?`,
			run.FinishedAt, run.Status, run.Warnings,
			run.CorrectedLights, run.SkippedLights, run.FailedLights,
			run.NonFinitePixels, run.RunID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("run %s not found", run.RunID)
		}
		return nil
	})
}

// InsertFrames records the per-frame outcomes of a run in one transaction.
func (c *Catalog) InsertFrames(runID string, recs []reduce.FrameRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := c.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO run_frames (
				run_id, path, kind, group_key, status, detail, output,
				dark_used, flat_used, non_finite
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range recs {
			_, err := stmt.Exec(
				runID, r.Path, r.Kind.String(), r.Group, string(r.Status),
				r.Detail, r.Output, r.DarkUsed, r.FlatUsed, r.NonFinite,
			)
			if err != nil {
				return fmt.Errorf("insert frame %s: %w", r.Path, err)
			}
		}
		return tx.Commit()
	})
}

// InsertMasters records the masters available to a run, flagging the ones
// loaded from disk rather than built, together with their pixel statistics.
// Keys are stored as text so dark exposures and flat filters share one
// column.
func (c *Catalog) InsertMasters(runID string, set *reduce.MasterSet) error {
	if set == nil || (len(set.Darks) == 0 && len(set.Flats) == 0) {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := c.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO run_masters (
				run_id, kind, group_key, name, path, combined, loaded,
				pix_mean, pix_median, pix_stddev, pix_min, pix_max, pix_n
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range set.Darks {
			err := insertMaster(stmt, runID, frame.MasterDark.String(),
				fmt.Sprintf("%d", d.Key), d.Name, d.Path, d.Frame, d.Loaded())
			if err != nil {
				return err
			}
		}
		for _, f := range set.Flats {
			err := insertMaster(stmt, runID, frame.MasterFlat.String(),
				f.Key, f.Name, f.Path, f.Frame, f.Loaded())
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func insertMaster(stmt *sql.Stmt, runID, kind, key, name, path string, f *frame.Frame, loaded bool) error {
	combined := 0
	var mean, median, stddev, min, max, n interface{}
	if f != nil {
		combined = f.Combined
		if f.Image != nil {
			st := f.Image.Stats()
			mean, median, stddev, min, max, n = st.Mean, st.Median, st.StdDev, st.Min, st.Max, st.N
		}
	}
	_, err := stmt.Exec(runID, kind, key, name, path, combined, loaded,
		mean, median, stddev, min, max, n)
	if err != nil {
		return fmt.Errorf("insert master %s: %w", name, err)
	}
	return nil
}

// RecordResult stores everything a finished pipeline run reports: frame
// outcomes, masters, counters and final status.
func (c *Catalog) RecordResult(run *Run, res *reduce.Result, runErr error) error {
	if err := c.InsertFrames(run.RunID, res.Records); err != nil {
		return err
	}
	if err := c.InsertMasters(run.RunID, &res.Masters); err != nil {
		return err
	}
	run.FinishedAt = res.FinishedAt.UnixNano()
	run.Warnings = len(res.Warnings)
	run.CorrectedLights = res.CorrectedLights
	run.SkippedLights = res.SkippedLights
	run.FailedLights = res.FailedLights
	run.NonFinitePixels = res.NonFinitePixels
	run.Status = RunStatusCompleted
	if runErr != nil {
		run.Status = RunStatusFailed
	}
	return c.FinishRun(run)
}

// GetRun returns a single run by ID.
func (c *Catalog) GetRun(runID string) (*Run, error) {
	row := c.QueryRow(`
		SELECT run_id, started_at, finished_at, level, status,
		       darks_dir, flats_dir, lights_dir, output_dir,
		       missing_master, non_finite, warnings,
		       corrected_lights, skipped_lights, failed_lights,
		       non_finite_pixels
		FROM reduce_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// all of them.
func (c *Catalog) ListRuns(limit int) ([]*Run, error) {
	q := `
		SELECT run_id, started_at, finished_at, level, status,
		       darks_dir, flats_dir, lights_dir, output_dir,
		       missing_master, non_finite, warnings,
		       corrected_lights, skipped_lights, failed_lights,
		       non_finite_pixels
		FROM reduce_runs
		ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := c.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListFrames returns the frame outcomes of a run in insertion order, which
// is the pipeline's deterministic record order.
func (c *Catalog) ListFrames(runID string) ([]*RunFrame, error) {
	rows, err := c.Query(`
		SELECT frame_id, run_id, path, kind, group_key, status, detail,
		       output, dark_used, flat_used, non_finite
		FROM run_frames
		WHERE run_id = ?
		ORDER BY frame_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []*RunFrame
	for rows.Next() {
		var f RunFrame
		var group, detail, output, dark, flat sql.NullString
		err := rows.Scan(&f.FrameID, &f.RunID, &f.Path, &f.Kind, &group,
			&f.Status, &detail, &output, &dark, &flat, &f.NonFinite)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.GroupKey = group.String
		f.Detail = detail.String
		f.Output = output.String
		f.DarkUsed = dark.String
		f.FlatUsed = flat.String
		frames = append(frames, &f)
	}
	return frames, rows.Err()
}

// ListMasters returns the masters of a run, darks before flats, each set in
// key order.
func (c *Catalog) ListMasters(runID string) ([]*RunMaster, error) {
	rows, err := c.Query(`
		SELECT master_id, run_id, kind, group_key, name, path, combined, loaded,
		       pix_mean, pix_median, pix_stddev, pix_min, pix_max, pix_n
		FROM run_masters
		WHERE run_id = ?
		ORDER BY master_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query masters: %w", err)
	}
	defer rows.Close()

	var masters []*RunMaster
	for rows.Next() {
		var m RunMaster
		var path sql.NullString
		var loaded int
		var mean, median, stddev, min, max sql.NullFloat64
		var n sql.NullInt64
		err := rows.Scan(&m.MasterID, &m.RunID, &m.Kind, &m.GroupKey,
			&m.Name, &path, &m.Combined, &loaded,
			&mean, &median, &stddev, &min, &max, &n)
		if err != nil {
			return nil, fmt.Errorf("scan master: %w", err)
		}
		m.Path = path.String
		m.Loaded = loaded != 0
		m.Stats = frame.ImageStats{
			Min:    min.Float64,
			Max:    max.Float64,
			Mean:   mean.Float64,
			StdDev: stddev.Float64,
			Median: median.Float64,
			N:      int(n.Int64),
		}
		masters = append(masters, &m)
	}
	return masters, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var finished sql.NullInt64
	var darks, flats, lights, out, mm, nf sql.NullString
	err := row.Scan(&run.RunID, &run.StartedAt, &finished, &run.Level,
		&run.Status, &darks, &flats, &lights, &out, &mm, &nf,
		&run.Warnings, &run.CorrectedLights, &run.SkippedLights,
		&run.FailedLights, &run.NonFinitePixels)
	if err != nil {
		return nil, err
	}
	run.FinishedAt = finished.Int64
	run.DarksDir = darks.String
	run.FlatsDir = flats.String
	run.LightsDir = lights.String
	run.OutputDir = out.String
	run.MissingMaster = mm.String
	run.NonFinite = nf.String
	return &run, nil
}

// retryOnBusy retries a write a few times when sqlite reports the database
// locked by another connection.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
