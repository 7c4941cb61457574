package reduce

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/jobs"
	"github.com/ridgetop-obs/astroreduce/internal/timeutil"
)

// Config carries the run-level settings for a Pipeline. The zero value
// is usable: strict policies, one worker per CPU, standard logging.
type Config struct {
	// MissingMaster decides whether a frame whose required master is
	// unavailable fails the run or is skipped. The same switch governs
	// the other frame-scoped failures (missing grouping metadata,
	// shape mismatches, degenerate flats): abort fails the run on the
	// first one, skip drops the affected frame or group and carries
	// on.
	MissingMaster MissingMasterPolicy

	// NonFinite decides how flat division treats divide-by-zero.
	NonFinite NonFinitePolicy

	// Workers caps stage parallelism. Zero or negative means
	// runtime.NumCPU().
	Workers int

	// Logf receives pipeline log lines. Defaults to log.Printf.
	Logf func(format string, args ...any)

	// Clock supplies run timestamps. Defaults to the real clock.
	Clock timeutil.Clock

	// Progress, if set, is called as stage work completes. It may be
	// called from multiple goroutines.
	Progress func(stage string, done, total int)
}

// Pipeline executes the calibration stages in order with strict
// barriers between them: every master dark exists before any flat or
// light is dark-corrected, and every master flat exists before any
// light is flat-corrected.
type Pipeline struct {
	cfg Config
}

// New builds a Pipeline, filling config defaults.
func New(cfg Config) *Pipeline {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Pipeline{cfg: cfg}
}

// Inputs is the frame collection one run works on. The raw slices
// carry frames with pixel data loaded. MasterDarks and MasterFlats
// hold previously built masters loaded from disk, for runs that start
// from existing calibration files instead of raw darks and flats; a
// freshly combined master replaces a loaded one with the same key.
type Inputs struct {
	Darks  []*frame.Frame
	Flats  []*frame.Frame
	Lights []*frame.Frame

	MasterDarks []*frame.Frame
	MasterFlats []*frame.Frame
}

// Calibrated is a corrected light frame together with the identity of
// the masters that produced it.
type Calibrated struct {
	Frame           *frame.Frame
	DarkUsed        string
	FlatUsed        string
	NonFinitePixels int
}

// Sink receives the pipeline's outputs. Write methods return the
// stored location, which ends up in the run records. Implementations
// must be safe for concurrent use: calibrated lights are written from
// parallel workers.
type Sink interface {
	WriteMasterDark(name string, f *frame.Frame) (string, error)
	WriteMasterFlat(name string, f *frame.Frame) (string, error)
	WriteCalibrated(name string, c *Calibrated) (string, error)
}

// Status classifies what happened to one input frame during a run.
type Status string

const (
	StatusCombined  Status = "combined"
	StatusCorrected Status = "corrected"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// FrameRecord reports the outcome for a single input frame with
// enough identity to locate and fix the input: source path,
// classification and group key.
type FrameRecord struct {
	Path      string
	Kind      frame.Kind
	Group     string
	Status    Status
	Detail    string
	Output    string
	DarkUsed  string
	FlatUsed  string
	NonFinite int
}

// Result summarizes one pipeline run.
type Result struct {
	Masters MasterSet
	Records []FrameRecord

	// Warnings lists run-level conditions that did not stop the run,
	// e.g. proceeding without dark correction under the skip policy.
	Warnings []string

	CorrectedLights int
	SkippedLights   int
	FailedLights    int

	// NonFinitePixels counts NaN or Inf pixels written under the
	// propagate policy, summed over all corrected lights.
	NonFinitePixels int64

	StartedAt  time.Time
	FinishedAt time.Time
}

// Run executes the calibration stages against in and writes every
// output through sink. The returned Result is non-nil even on error,
// so callers can report partial progress. Under the abort policy the
// first frame-scoped failure ends the run; under skip the run
// continues and failures land in Result.Records. Sink write errors
// always end the run.
func (p *Pipeline) Run(ctx context.Context, in Inputs, sink Sink) (*Result, error) {
	res := &Result{StartedAt: p.cfg.Clock.Now()}
	defer func() { res.FinishedAt = p.cfg.Clock.Now() }()

	if err := p.loadMasters(in, res); err != nil {
		return res, err
	}
	if err := p.buildMasterDarks(ctx, in.Darks, sink, res); err != nil {
		return res, err
	}
	if err := p.buildMasterFlats(ctx, in.Flats, sink, res); err != nil {
		return res, err
	}
	if err := p.correctLights(ctx, in.Lights, sink, res); err != nil {
		return res, err
	}
	return res, nil
}

// loadMasters admits pre-built masters into the run's master set,
// keyed the same way freshly combined ones are.
func (p *Pipeline) loadMasters(in Inputs, res *Result) error {
	for _, m := range in.MasterDarks {
		if math.IsNaN(m.ExposureSecs) {
			gerr := &GroupingError{Path: m.Path, Kind: m.Kind, Missing: "exposure time"}
			if p.cfg.MissingMaster == MissingMasterAbort {
				return gerr
			}
			p.warnf(res, "ignoring unusable master dark: %v", gerr)
			continue
		}
		key := RoundExposure(m.ExposureSecs)
		if existing := res.Masters.darkByKey(key); existing != nil {
			p.warnf(res, "duplicate master dark for %ds: keeping %q, ignoring %q", key, existing.Path, m.Path)
			continue
		}
		res.Masters.Darks = append(res.Masters.Darks, &MasterDark{
			Key: key, Name: MasterDarkName(key), Path: m.Path, Frame: m,
		})
	}
	sortMasterDarks(res.Masters.Darks)

	for _, m := range in.MasterFlats {
		if m.Filter == "" {
			gerr := &GroupingError{Path: m.Path, Kind: m.Kind, Missing: "filter"}
			if p.cfg.MissingMaster == MissingMasterAbort {
				return gerr
			}
			p.warnf(res, "ignoring unusable master flat: %v", gerr)
			continue
		}
		key := FoldFilter(m.Filter)
		if existing := res.Masters.FlatFor(key); existing != nil {
			p.warnf(res, "duplicate master flat for filter %q: keeping %q, ignoring %q", key, existing.Path, m.Path)
			continue
		}
		res.Masters.Flats = append(res.Masters.Flats, &MasterFlat{
			Key: key, Name: MasterFlatName(m.Filter), Path: m.Path, Frame: m,
		})
	}
	sortMasterFlats(res.Masters.Flats)

	if n := len(res.Masters.Darks) + len(res.Masters.Flats); n > 0 {
		p.cfg.Logf("[reduce] loaded %d master darks, %d master flats",
			len(res.Masters.Darks), len(res.Masters.Flats))
	}
	return nil
}

func (p *Pipeline) buildMasterDarks(ctx context.Context, darks []*frame.Frame, sink Sink, res *Result) error {
	if len(darks) == 0 {
		return nil
	}
	valid, err := p.admit(darks, res)
	if err != nil {
		return err
	}
	groups, err := GroupDarks(valid)
	if err != nil {
		return err
	}
	keys := SortedDarkKeys(groups)
	if len(keys) == 0 {
		return nil
	}
	p.cfg.Logf("[reduce] combining %d darks into %d master darks", len(valid), len(keys))

	combined := make([]*frame.Frame, len(keys))
	batch := make([]jobs.Job, len(keys))
	for i, key := range keys {
		group := groups[key]
		batch[i] = func(ctx context.Context) error {
			m, err := Combine(group)
			if err != nil {
				return err
			}
			combined[i] = m
			return nil
		}
	}
	failures, err := p.pool("combine darks").Run(ctx, batch)
	if err != nil {
		return err
	}
	if err := p.groupFailures(res, failures, func(i int) (string, []*frame.Frame) {
		return darkGroupLabel(keys[i]), groups[keys[i]]
	}); err != nil {
		return err
	}

	for i, key := range keys {
		m := combined[i]
		if m == nil {
			continue
		}
		name := MasterDarkName(key)
		path, err := sink.WriteMasterDark(name, m)
		if err != nil {
			return fmt.Errorf("write master dark %s: %w", name, err)
		}
		p.addMasterDark(res, &MasterDark{Key: key, Name: name, Path: path, Frame: m})
		p.recordGroup(res, groups[key], darkGroupLabel(key), StatusCombined, "", path)
	}
	return nil
}

func (p *Pipeline) buildMasterFlats(ctx context.Context, flats []*frame.Frame, sink Sink, res *Result) error {
	if len(flats) == 0 {
		return nil
	}
	valid, err := p.admit(flats, res)
	if err != nil {
		return err
	}
	if len(valid) == 0 {
		return nil
	}
	if len(res.Masters.Darks) == 0 {
		if p.cfg.MissingMaster == MissingMasterAbort {
			return &MissingMasterError{Path: valid[0].Path, Want: frame.MasterDark, Key: "any exposure"}
		}
		p.warnf(res, "no master darks; combining %d flats without dark correction", len(valid))
	}
	groups, err := GroupFlats(valid)
	if err != nil {
		return err
	}
	keys := SortedFlatKeys(groups)
	p.cfg.Logf("[reduce] combining %d flats into %d master flats", len(valid), len(keys))

	combined := make([]*frame.Frame, len(keys))
	batch := make([]jobs.Job, len(keys))
	for i, key := range keys {
		group := groups[key]
		batch[i] = func(ctx context.Context) error {
			m, err := p.combineFlatGroup(&res.Masters, group)
			if err != nil {
				return err
			}
			combined[i] = m
			return nil
		}
	}
	failures, err := p.pool("combine flats").Run(ctx, batch)
	if err != nil {
		return err
	}
	if err := p.groupFailures(res, failures, func(i int) (string, []*frame.Frame) {
		return "filter " + keys[i], groups[keys[i]]
	}); err != nil {
		return err
	}

	for i, key := range keys {
		m := combined[i]
		if m == nil {
			continue
		}
		name := MasterFlatName(m.Filter)
		path, err := sink.WriteMasterFlat(name, m)
		if err != nil {
			return fmt.Errorf("write master flat %s: %w", name, err)
		}
		p.addMasterFlat(res, &MasterFlat{Key: key, Name: name, Path: path, Frame: m})
		p.recordGroup(res, groups[key], "filter "+key, StatusCombined, "", path)
	}
	return nil
}

// combineFlatGroup dark-corrects each flat against the master dark
// nearest its own exposure, then median-combines the group. With no
// master darks available the flats combine as-is; the caller has
// already applied the missing-master policy.
func (p *Pipeline) combineFlatGroup(masters *MasterSet, group []*frame.Frame) (*frame.Frame, error) {
	corrected := make([]*frame.Frame, len(group))
	for i, f := range group {
		md := masters.NearestDark(f.ExposureSecs)
		if md == nil {
			corrected[i] = f
			continue
		}
		im, err := SubtractDark(f, md.Frame)
		if err != nil {
			return nil, err
		}
		corrected[i] = f.WithImage(im)
	}
	return Combine(corrected)
}

func (p *Pipeline) correctLights(ctx context.Context, lights []*frame.Frame, sink Sink, res *Result) error {
	if len(lights) == 0 {
		return nil
	}
	// Naming fallback index, fixed by discovery order before any
	// filtering happens.
	indexOf := make(map[*frame.Frame]int, len(lights))
	for i, f := range lights {
		indexOf[f] = i + 1
	}

	valid, err := p.admit(lights, res)
	if err != nil {
		return err
	}
	if len(valid) == 0 {
		return nil
	}
	if len(res.Masters.Darks) == 0 && len(res.Masters.Flats) == 0 {
		if p.cfg.MissingMaster == MissingMasterAbort {
			return &MissingMasterError{Path: valid[0].Path, Want: frame.MasterDark, Key: "any exposure"}
		}
		p.warnf(res, "no master frames; skipping %d lights", len(valid))
		for _, f := range valid {
			res.Records = append(res.Records, FrameRecord{
				Path: f.Path, Kind: f.Kind, Status: StatusSkipped,
				Detail: "no master frames available",
			})
		}
		res.SkippedLights += len(valid)
		return nil
	}

	groups, err := GroupLights(valid)
	if err != nil {
		return err
	}
	keys := SortedLightKeys(groups)

	type plan struct {
		key   LightKey
		group []*frame.Frame
		dark  *MasterDark
		flat  *MasterFlat
	}
	plans := make([]plan, 0, len(keys))
	warnedNoDark, warnedNoFlat := false, false
	for _, key := range keys {
		group := groups[key]
		md := res.Masters.NearestDark(key.ExposureSecs)
		if md == nil {
			if p.cfg.MissingMaster == MissingMasterAbort {
				return &MissingMasterError{Path: group[0].Path, Want: frame.MasterDark, Key: fmt.Sprintf("exposure %gs", key.ExposureSecs)}
			}
			if !warnedNoDark {
				p.warnf(res, "no master darks; correcting lights without dark subtraction")
				warnedNoDark = true
			}
		}
		mf := res.Masters.FlatFor(key.Filter)
		if mf == nil {
			if p.cfg.MissingMaster == MissingMasterAbort {
				return &MissingMasterError{Path: group[0].Path, Want: frame.MasterFlat, Key: "filter " + key.Filter}
			}
			if len(res.Masters.Flats) > 0 {
				// Other filters have flats. Writing this group without
				// flat division would hide an input problem, so skip
				// it instead.
				p.warnf(res, "no master flat for filter %q; skipping %d lights of %s", key.Filter, len(group), key)
				p.recordGroup(res, group, key.String(), StatusSkipped, "no master flat for filter "+key.Filter, "")
				res.SkippedLights += len(group)
				continue
			}
			if !warnedNoFlat {
				p.warnf(res, "no master flats; correcting lights without flat division")
				warnedNoFlat = true
			}
		}
		plans = append(plans, plan{key: key, group: group, dark: md, flat: mf})
	}
	if len(plans) == 0 {
		return nil
	}

	total := 0
	for _, pl := range plans {
		total += len(pl.group)
	}
	p.cfg.Logf("[reduce] correcting %d lights in %d groups", total, len(plans))

	recs := make([][]FrameRecord, len(plans))
	batch := make([]jobs.Job, len(plans))
	for i, pl := range plans {
		batch[i] = func(ctx context.Context) error {
			for _, f := range pl.group {
				rec := FrameRecord{Path: f.Path, Kind: f.Kind, Group: pl.key.String()}
				c, err := p.correctOne(f, pl.dark, pl.flat)
				if err != nil {
					if p.cfg.MissingMaster == MissingMasterAbort {
						return err
					}
					rec.Status = StatusFailed
					rec.Detail = err.Error()
					recs[i] = append(recs[i], rec)
					continue
				}
				name := CalibratedName(f, indexOf[f])
				path, werr := sink.WriteCalibrated(name, c)
				if werr != nil {
					return fmt.Errorf("write %s: %w", name, werr)
				}
				rec.Status = StatusCorrected
				rec.Output = path
				rec.DarkUsed = c.DarkUsed
				rec.FlatUsed = c.FlatUsed
				rec.NonFinite = c.NonFinitePixels
				recs[i] = append(recs[i], rec)
			}
			return nil
		}
	}
	failures, err := p.pool("correct lights").Run(ctx, batch)

	// Flatten per-group records in key order before surfacing any
	// error, so partial progress stays reported.
	for _, groupRecs := range recs {
		for _, rec := range groupRecs {
			res.Records = append(res.Records, rec)
			switch rec.Status {
			case StatusCorrected:
				res.CorrectedLights++
				res.NonFinitePixels += int64(rec.NonFinite)
			case StatusFailed:
				res.FailedLights++
			}
		}
	}
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return failures[0].Err
	}
	return nil
}

// correctOne applies dark subtraction then flat division to a single
// light frame. Either master may be nil, in which case that step is
// skipped; the result still gets a fresh pixel buffer.
func (p *Pipeline) correctOne(f *frame.Frame, md *MasterDark, mf *MasterFlat) (*Calibrated, error) {
	if f.Image == nil {
		return nil, fmt.Errorf("frame %q has no pixel data", f.Path)
	}
	c := &Calibrated{}
	im := f.Image
	if md != nil {
		sub, err := SubtractDark(f, md.Frame)
		if err != nil {
			return nil, err
		}
		im = sub
		c.DarkUsed = md.Name
	}
	if mf != nil {
		norm, err := mf.Normalized()
		if err != nil {
			return nil, err
		}
		div, bad, err := DivideFlat(f, im, norm, p.cfg.NonFinite)
		if err != nil {
			return nil, err
		}
		im = div
		c.FlatUsed = mf.Name
		c.NonFinitePixels = bad
	}
	if im == f.Image {
		im = f.Image.Clone()
	}
	c.Frame = f.WithImage(im)
	return c, nil
}

// admit filters out frames that cannot be grouped. Under abort the
// first such frame fails the stage; under skip it is recorded and
// dropped.
func (p *Pipeline) admit(frames []*frame.Frame, res *Result) ([]*frame.Frame, error) {
	valid := make([]*frame.Frame, 0, len(frames))
	for _, f := range frames {
		missing := requiredMissing(f)
		if missing == "" {
			valid = append(valid, f)
			continue
		}
		gerr := &GroupingError{Path: f.Path, Kind: f.Kind, Missing: missing}
		if p.cfg.MissingMaster == MissingMasterAbort {
			return nil, gerr
		}
		p.cfg.Logf("[reduce] skipping %s %q: missing %s", f.Kind, f.Path, missing)
		res.Records = append(res.Records, FrameRecord{
			Path: f.Path, Kind: f.Kind, Status: StatusSkipped, Detail: gerr.Error(),
		})
		if f.Kind == frame.Light {
			res.SkippedLights++
		}
	}
	return valid, nil
}

// requiredMissing names the grouping attribute a frame lacks, or ""
// when the frame is groupable.
func requiredMissing(f *frame.Frame) string {
	switch f.Kind {
	case frame.Light:
		if math.IsNaN(f.ExposureSecs) {
			return "exposure time"
		}
		if f.Filter == "" {
			return "filter"
		}
	case frame.Flat, frame.MasterFlat:
		if f.Filter == "" {
			return "filter"
		}
	case frame.Dark, frame.MasterDark:
		if math.IsNaN(f.ExposureSecs) {
			return "exposure time"
		}
	}
	return ""
}

// groupFailures converts combine failures into a run failure or skip
// records depending on policy. Failures arrive ordered by group index,
// so the abort path deterministically reports the lowest failing key.
func (p *Pipeline) groupFailures(res *Result, failures []jobs.JobError, lookup func(i int) (string, []*frame.Frame)) error {
	for _, jf := range failures {
		label, group := lookup(jf.Index)
		if p.cfg.MissingMaster == MissingMasterAbort {
			return jf.Err
		}
		p.warnf(res, "group %s not combined: %v", label, jf.Err)
		p.recordGroup(res, group, label, StatusFailed, jf.Err.Error(), "")
	}
	return nil
}

// addMasterDark inserts a freshly combined master, replacing a loaded
// master with the same key.
func (p *Pipeline) addMasterDark(res *Result, md *MasterDark) {
	for i, d := range res.Masters.Darks {
		if d.Key == md.Key {
			p.warnf(res, "rebuilt master dark %s replaces loaded %q", md.Name, d.Path)
			res.Masters.Darks[i] = md
			return
		}
	}
	res.Masters.Darks = append(res.Masters.Darks, md)
	sortMasterDarks(res.Masters.Darks)
}

// addMasterFlat inserts a freshly combined master, replacing a loaded
// master with the same filter key.
func (p *Pipeline) addMasterFlat(res *Result, mf *MasterFlat) {
	for i, f := range res.Masters.Flats {
		if f.Key == mf.Key {
			p.warnf(res, "rebuilt master flat %s replaces loaded %q", mf.Name, f.Path)
			res.Masters.Flats[i] = mf
			return
		}
	}
	res.Masters.Flats = append(res.Masters.Flats, mf)
	sortMasterFlats(res.Masters.Flats)
}

func (p *Pipeline) recordGroup(res *Result, group []*frame.Frame, label string, status Status, detail, output string) {
	for _, f := range group {
		res.Records = append(res.Records, FrameRecord{
			Path: f.Path, Kind: f.Kind, Group: label,
			Status: status, Detail: detail, Output: output,
		})
	}
}

func (p *Pipeline) warnf(res *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	res.Warnings = append(res.Warnings, msg)
	p.cfg.Logf("[reduce] warning: %s", msg)
}

func (p *Pipeline) pool(stage string) *jobs.Pool {
	pl := &jobs.Pool{Workers: p.cfg.Workers}
	if p.cfg.Progress != nil {
		pl.OnDone = func(done, total int) { p.cfg.Progress(stage, done, total) }
	}
	return pl
}

func darkGroupLabel(key int) string {
	return fmt.Sprintf("%ds", key)
}

func sortMasterDarks(darks []*MasterDark) {
	sort.Slice(darks, func(i, j int) bool { return darks[i].Key < darks[j].Key })
}

func sortMasterFlats(flats []*MasterFlat) {
	sort.Slice(flats, func(i, j int) bool { return flats[i].Key < flats[j].Key })
}
