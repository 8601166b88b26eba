// Package dataset loads labeled benchmark datasets by name. Two JSON
// layouts are accepted: the labeled format ("test_cases" with explicit
// expected_entities offsets) and the scenario format ("scenarios" with
// an expected_pii type list, positions resolved through a locator
// detector at load time).
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"piiguard/internal/core"
)

// GoldenName is the embedded golden dataset shipped with the binary.
const GoldenName = "golden_hr"

// Case is a single labeled benchmark case.
type Case struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	Expected    []core.EntitySpan `json:"expected_entities"`
	Category    string            `json:"category,omitempty"`
	Difficulty  string            `json:"difficulty,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Dataset is a named, read-only collection of cases.
type Dataset struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Cases       []Case `json:"cases"`
}

// Info is a dataset listing entry.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CaseCount   int    `json:"case_count"`
}

// Store resolves dataset names to parsed datasets. The optional locator
// detector turns scenario-format type lists into positioned spans; the
// pattern backend is the usual choice since it is cheap and offline.
type Store struct {
	dir     string
	locator core.Detector
}

// NewStore creates a store over a directory of JSON datasets. dir may
// be empty; the embedded golden dataset is always available.
func NewStore(dir string, locator core.Detector) *Store {
	return &Store{dir: dir, locator: locator}
}

// List returns the embedded dataset plus every .json file in the
// dataset directory, sorted by name.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	golden, err := s.parse(ctx, GoldenName, embeddedGolden)
	if err != nil {
		return nil, err
	}
	infos := []Info{{Name: golden.Name, Description: golden.Description, CaseCount: len(golden.Cases)}}

	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read dataset dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".json")
			if name == GoldenName {
				continue
			}
			ds, err := s.Load(ctx, name)
			if err != nil {
				continue
			}
			infos = append(infos, Info{Name: ds.Name, Description: ds.Description, CaseCount: len(ds.Cases)})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Load parses the named dataset.
func (s *Store) Load(ctx context.Context, name string) (*Dataset, error) {
	if name == GoldenName {
		return s.parse(ctx, name, embeddedGolden)
	}
	if s.dir == "" {
		return nil, core.NewNotFoundError(fmt.Sprintf("dataset not found: %s", name))
	}
	path := filepath.Join(s.dir, filepath.Base(name)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError(fmt.Sprintf("dataset not found: %s", name))
		}
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}
	return s.parse(ctx, name, data)
}

func (s *Store) parse(ctx context.Context, name string, data []byte) (*Dataset, error) {
	if !gjson.ValidBytes(data) {
		return nil, core.NewEvaluationError(fmt.Sprintf("dataset %s is not valid JSON", name), nil)
	}

	root := gjson.ParseBytes(data)
	ds := &Dataset{Name: name}
	if n := root.Get("name"); n.Exists() {
		ds.Name = n.String()
	}
	ds.Description = root.Get("description").String()

	items := root.Get("test_cases")
	if !items.Exists() {
		items = root.Get("scenarios")
	}
	if !items.IsArray() {
		return nil, core.NewEvaluationError(fmt.Sprintf("dataset %s has no test_cases or scenarios array", name), nil)
	}

	var parseErr error
	items.ForEach(func(_, item gjson.Result) bool {
		c := Case{
			ID:          item.Get("id").String(),
			Category:    item.Get("category").String(),
			Difficulty:  item.Get("difficulty").String(),
			Description: item.Get("description").String(),
		}
		if c.Query = item.Get("query").String(); c.Query == "" {
			c.Query = item.Get("prompt").String()
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("TC-%03d", len(ds.Cases)+1)
		}

		if ents := item.Get("expected_entities"); ents.Exists() {
			c.Expected = parseExpectedEntities(c.Query, ents)
		} else {
			types := parseExpectedTypes(item.Get("expected_pii"))
			spans, err := s.locateExpected(ctx, c.Query, types)
			if err != nil {
				parseErr = err
				return false
			}
			c.Expected = spans
		}

		ds.Cases = append(ds.Cases, c)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return ds, nil
}

func parseExpectedEntities(query string, ents gjson.Result) []core.EntitySpan {
	var spans []core.EntitySpan
	ents.ForEach(func(_, e gjson.Result) bool {
		t := e.Get("entity_type")
		if !t.Exists() {
			t = e.Get("type")
		}
		span := core.EntitySpan{
			Type:       core.EntityType(strings.ToUpper(t.String())),
			Start:      int(e.Get("start").Int()),
			End:        int(e.Get("end").Int()),
			Text:       e.Get("text").String(),
			Confidence: 1,
		}
		if span.Text == "" && span.ValidIn(len(query)) {
			span.Text = query[span.Start:span.End]
		}
		spans = append(spans, span)
		return true
	})
	return spans
}

func parseExpectedTypes(types gjson.Result) []core.EntityType {
	var out []core.EntityType
	types.ForEach(func(_, t gjson.Result) bool {
		out = append(out, core.EntityType(strings.ToUpper(t.String())))
		return true
	})
	return out
}

// locateExpected converts a bare type list into positioned spans by
// running the locator over the query and keeping, per type, as many
// detections as the list names. Without a locator (or when it misses a
// type) the leftover types become unpositioned sentinel spans, which
// never match and therefore count as misses rather than vanishing.
func (s *Store) locateExpected(ctx context.Context, query string, types []core.EntityType) ([]core.EntitySpan, error) {
	if len(types) == 0 {
		return nil, nil
	}

	wanted := make(map[core.EntityType]int)
	for _, t := range types {
		wanted[t]++
	}

	var spans []core.EntitySpan
	if s.locator != nil {
		detected, err := s.locator.Detect(ctx, query)
		if err != nil {
			return nil, core.NewEvaluationError("locating expected entities", err)
		}
		sort.SliceStable(detected, func(i, j int) bool { return detected[i].Start < detected[j].Start })
		for _, d := range detected {
			if wanted[d.Type] == 0 {
				continue
			}
			wanted[d.Type]--
			spans = append(spans, core.EntitySpan{
				Type:       d.Type,
				Start:      d.Start,
				End:        d.End,
				Text:       d.Text,
				Confidence: 1,
			})
		}
	}

	for _, t := range types {
		if wanted[t] == 0 {
			continue
		}
		wanted[t]--
		spans = append(spans, core.EntitySpan{
			Type:       t,
			Start:      -1,
			End:        -1,
			Text:       fmt.Sprintf("[%s]", t),
			Confidence: 1,
		})
	}

	return spans, nil
}

// Scenarios returns the golden scenarios as served to the UI.
func Scenarios() ([]map[string]any, error) {
	var file struct {
		Scenarios []map[string]any `json:"scenarios"`
	}
	if err := json.Unmarshal(embeddedGolden, &file); err != nil {
		return nil, fmt.Errorf("parse embedded scenarios: %w", err)
	}
	return file.Scenarios, nil
}
