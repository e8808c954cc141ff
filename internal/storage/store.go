package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/san-kum/mdscript/internal/engine"
)

const (
	metadataFile = "metadata.json"
	stateFile    = "state.json"
	eventsFile   = "events.csv.gz"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type PlanMetadata struct {
	ID         string    `json:"id"`
	Script     string    `json:"script"`
	Timestamp  time.Time `json:"timestamp"`
	Units      string    `json:"units"`
	Directives int       `json:"directives"`
	Phases     int       `json:"phases"`
	FinalStep  int64     `json:"final_step"`
	TotalSteps int64     `json:"total_steps"`
	ThermoRows int64     `json:"thermo_rows"`
	DumpFrames int64     `json:"dump_frames"`
}

// Save writes the dry-run state of a script under a new plan ID. A plan that
// fails to write is removed.
func (s *Store) Save(scriptPath string, st *engine.State) (planID string, err error) {
	now := time.Now()
	name := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	if name == "" || name == "." {
		name = "script"
	}
	planID = fmt.Sprintf("%s_%d", name, now.UnixNano())
	planDir := filepath.Join(s.baseDir, planID)

	if err := os.MkdirAll(planDir, 0755); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(planDir)
		}
	}()

	meta := PlanMetadata{
		ID:         planID,
		Script:     scriptPath,
		Timestamp:  now,
		Units:      st.Units,
		Directives: st.Applied,
		Phases:     len(st.Phases),
		FinalStep:  st.Step,
		TotalSteps: st.TotalSteps(),
	}
	for _, p := range st.Phases {
		meta.ThermoRows += p.ThermoRows
		meta.DumpFrames += p.DumpFrames
	}

	if err := writeJSON(filepath.Join(planDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(planDir, stateFile), st); err != nil {
		return "", err
	}
	if err := writeEvents(filepath.Join(planDir, eventsFile), st); err != nil {
		return "", err
	}

	return planID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeEvents streams the output schedule into a gzip CSV, one phase at a
// time.
func writeEvents(path string, st *engine.State) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	w := csv.NewWriter(zw)

	if err := w.Write([]string{"phase", "step", "kind", "stream"}); err != nil {
		return err
	}
	row := make([]string, 4)
	err = st.Walk(func(e engine.Event) error {
		row[0] = strconv.Itoa(e.Phase)
		row[1] = strconv.FormatInt(e.Step, 10)
		row[2] = e.Kind
		row[3] = e.Stream
		return w.Write(row)
	})
	if err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return zw.Close()
}

// List returns stored plans, oldest first.
func (s *Store) List() ([]PlanMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []PlanMetadata{}, nil
		}
		return nil, err
	}

	plans := make([]PlanMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		plans = append(plans, *meta)
	}

	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].Timestamp.Before(plans[j].Timestamp)
	})
	return plans, nil
}

func (s *Store) Load(planID string) (*PlanMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, planID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta PlanMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadState(planID string) (*engine.State, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, planID, stateFile))
	if err != nil {
		return nil, err
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) LoadEvents(planID string) ([]engine.Event, error) {
	f, err := os.Open(filepath.Join(s.baseDir, planID, eventsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	r := csv.NewReader(zr)
	r.FieldsPerRecord = 4

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []engine.Event{}, nil
	}

	events := make([]engine.Event, 0, len(records)-1)
	for i, rec := range records[1:] {
		phase, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", eventsFile, i+2, err)
		}
		step, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", eventsFile, i+2, err)
		}
		events = append(events, engine.Event{Phase: phase, Step: step, Kind: rec[2], Stream: rec[3]})
	}
	return events, nil
}
