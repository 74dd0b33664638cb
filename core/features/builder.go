package features

import (
	"fmt"
	"math/bits"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// Config declares the feature layout the loaded regressors expect and how
// station partitions are processed.
type Config struct {
	// BaseFeatures must list the base features in layout order. Empty means
	// the compiled layout.
	BaseFeatures []string `json:"base_features"`
	// LagDepth must equal LagDepth when set.
	LagDepth int `json:"lag_depth"`
	// Parallel computes station partitions on separate goroutines.
	Parallel bool `json:"parallel"`
	// Workers bounds the number of partition goroutines. Zero uses GOMAXPROCS.
	Workers int `json:"workers"`
}

// SetDefaults fills the compiled layout into empty fields.
func (c *Config) SetDefaults() {
	if len(c.BaseFeatures) == 0 {
		c.BaseFeatures = BaseNames()
	}
	if c.LagDepth == 0 {
		c.LagDepth = LagDepth
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Validate checks the declared layout against the compiled one.
func (c Config) Validate() error {
	if c.LagDepth != LagDepth {
		return &model.ConfigurationError{
			Field:  "features.lag_depth",
			Reason: fmt.Sprintf("declared %d, compiled layout uses %d", c.LagDepth, LagDepth),
		}
	}
	if !slices.Equal(c.BaseFeatures, BaseNames()) {
		return &model.ConfigurationError{
			Field: "features.base_features",
			Reason: fmt.Sprintf("declared [%s], compiled layout is [%s]",
				strings.Join(c.BaseFeatures, ","), strings.Join(BaseNames(), ",")),
		}
	}
	return nil
}

// Vector is one fixed-width regressor input.
type Vector [Width]float64

// FeatureVector is a Vector tagged with the identity of the record it was
// built for.
type FeatureVector struct {
	Key      model.IdentityKey
	District string
	Values   Vector
	imputed  uint64
}

// Imputed reports whether column col was filled by imputation.
func (fv *FeatureVector) Imputed(col int) bool { return fv.imputed&(1<<uint(col)) != 0 }

// ImputedCount returns the number of imputed columns.
func (fv *FeatureVector) ImputedCount() int { return bits.OnesCount64(fv.imputed) }

// Batch is the output of one Build call. Vectors[i] belongs to the i-th
// input record.
type Batch struct {
	Vectors      []FeatureVector
	Stations     int
	ImputedCells int
}

// Len returns the number of vectors.
func (b *Batch) Len() int { return len(b.Vectors) }

// Rows exposes the vectors as slices sharing the batch's storage.
func (b *Batch) Rows() [][]float64 {
	rows := make([][]float64, len(b.Vectors))
	for i := range b.Vectors {
		rows[i] = b.Vectors[i].Values[:]
	}
	return rows
}

// Builder turns historical records into lagged feature vectors. It holds no
// state between calls and is safe for concurrent use.
type Builder struct {
	cfg Config
	log logger.Logger
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg Config, log logger.Logger) (*Builder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, log: logger.OrNop(log)}, nil
}

// Build emits one FeatureVector per record, in input order. Each record's
// lag d features are the base features of the record d positions earlier in
// the same station's series sorted by date then time slot. Lags reaching
// before the start of a series are imputed with the batch-wide mean of the
// defined values of that column, or 0 when the column has none.
func (b *Builder) Build(records []model.HistoricalRecord) (*Batch, error) {
	bases := make([]base, len(records))
	partitions := map[string][]int{}
	var order []string
	seen := make(map[model.IdentityKey]struct{}, len(records))
	for i, r := range records {
		if err := checkRecord(r); err != nil {
			return nil, err
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			return nil, &model.DuplicateKeyError{Key: k}
		}
		seen[k] = struct{}{}
		bases[i] = baseOf(r)
		if _, ok := partitions[r.Station]; !ok {
			order = append(order, r.Station)
		}
		partitions[r.Station] = append(partitions[r.Station], i)
	}

	out := make([]FeatureVector, len(records))
	lagPartition := func(idx []int) {
		slices.SortStableFunc(idx, func(a, c int) int {
			if d := records[a].Date.Compare(records[c].Date); d != 0 {
				return d
			}
			return int(records[a].TimeSlot) - int(records[c].TimeSlot)
		})
		for pos, i := range idx {
			fv := &out[i]
			fv.Key = records[i].Key()
			fv.District = records[i].District
			for lag := 1; lag <= LagDepth; lag++ {
				if pos-lag < 0 {
					for f := Feature(0); f < NumBase; f++ {
						fv.imputed |= 1 << uint(Column(lag, f))
					}
					continue
				}
				src := bases[idx[pos-lag]]
				copy(fv.Values[Column(lag, 0):Column(lag, 0)+int(NumBase)], src[:])
			}
		}
	}

	if b.cfg.Parallel && len(order) > 1 {
		// Partitions write disjoint elements of out; imputation below runs
		// after all of them over the whole batch.
		var g errgroup.Group
		g.SetLimit(b.cfg.Workers)
		for _, st := range order {
			idx := partitions[st]
			g.Go(func() error {
				lagPartition(idx)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, st := range order {
			lagPartition(partitions[st])
		}
	}

	imputed := impute(out)
	b.log.Debugw("feature batch built", map[string]any{
		"records":       len(records),
		"stations":      len(order),
		"imputed_cells": imputed,
	})
	return &Batch{Vectors: out, Stations: len(order), ImputedCells: imputed}, nil
}

// impute replaces undefined cells with the mean of the defined cells of the
// same column across the whole batch.
func impute(vs []FeatureVector) int {
	total := 0
	defined := make([]float64, 0, len(vs))
	for col := 0; col < Width; col++ {
		defined = defined[:0]
		missing := 0
		for i := range vs {
			if vs[i].Imputed(col) {
				missing++
				continue
			}
			defined = append(defined, vs[i].Values[col])
		}
		if missing == 0 {
			continue
		}
		mean := 0.0
		if len(defined) > 0 {
			mean = stat.Mean(defined, nil)
		}
		for i := range vs {
			if vs[i].Imputed(col) {
				vs[i].Values[col] = mean
			}
		}
		total += missing
	}
	return total
}

func checkRecord(r model.HistoricalRecord) error {
	switch {
	case r.Station == "":
		return &model.ConfigurationError{Field: "station", Reason: "missing on input record"}
	case r.Date.IsZero():
		return &model.ConfigurationError{Field: "date", Reason: "missing on input record " + r.Station}
	case !r.TimeSlot.Valid():
		return &model.ConfigurationError{Field: "time_slot", Reason: fmt.Sprintf("value %d outside one day", int(r.TimeSlot))}
	case r.InCount < 0:
		return &model.ConfigurationError{Field: "in_count", Reason: "negative count for " + r.Key().String()}
	case r.OutCount < 0:
		return &model.ConfigurationError{Field: "out_count", Reason: "negative count for " + r.Key().String()}
	}
	return nil
}
