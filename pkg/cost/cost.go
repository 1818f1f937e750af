// Package cost groups subscription usage details into a per-resource cost
// report.
package cost

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/models"
	"github.com/kubestellar/aks-console/pkg/session"
)

const (
	DefaultDays = 30
	MinDays     = 1
	MaxDays     = 90
)

// UsageSource reads raw usage-detail rows for a time window.
type UsageSource interface {
	UsageDetails(ctx context.Context, from, to time.Time) ([]models.UsageRecord, error)
}

// SourceFactory builds a usage source for a session.
type SourceFactory func(s *session.Session) (UsageSource, error)

// Aggregator produces cost reports.
type Aggregator struct {
	source SourceFactory
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(source SourceFactory, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{source: source, logger: logger, now: time.Now}
}

// ClampDays bounds a requested window to [MinDays, MaxDays]. Callers apply
// DefaultDays when no window was requested.
func ClampDays(days int) int {
	if days < MinDays {
		return MinDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// Report returns the grouped cost of the last days days.
func (a *Aggregator) Report(ctx context.Context, s *session.Session, days int) (*models.CostReport, error) {
	days = ClampDays(days)

	src, err := a.source(s)
	if err != nil {
		return nil, err
	}

	end := a.now().UTC()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	records, err := src.UsageDetails(ctx, start, end)
	if err != nil {
		return nil, err
	}

	total, items := Aggregate(records)
	a.logger.Debug("cost report built",
		zap.Int("days", days),
		zap.Int("rows", len(records)),
		zap.Int("items", len(items)))

	return &models.CostReport{
		Range: start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339),
		Days:  days,
		Total: total,
		Items: items,
	}, nil
}

// Aggregate sums cost per (name, meter category), skipping rows without a
// meter category, and sorts by cost descending with name as tie-break.
func Aggregate(records []models.UsageRecord) (float64, []models.CostItem) {
	type key struct{ name, category string }

	var total float64
	index := make(map[key]int)
	items := []models.CostItem{}
	for _, r := range records {
		if r.MeterCategory == "" {
			continue
		}
		name := r.Name
		if name == "" {
			name = "unknown"
		}
		total += r.Cost
		k := key{name, r.MeterCategory}
		if i, ok := index[k]; ok {
			items[i].Cost += r.Cost
			continue
		}
		index[k] = len(items)
		items = append(items, models.CostItem{Name: name, MeterCategory: r.MeterCategory, Cost: r.Cost})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Cost != items[j].Cost {
			return items[i].Cost > items[j].Cost
		}
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].MeterCategory < items[j].MeterCategory
	})
	return total, items
}
