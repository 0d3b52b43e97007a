package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/hunt"
	"github.com/dgallion1/huntgest/internal/pathstore"
)

// NodeStore is the subset of the pathstore client the publisher uses.
type NodeStore interface {
	PutNode(ctx context.Context, key string, req pathstore.NodeRequest) error
	GetNode(ctx context.Context, key string) (*pathstore.NodeResponse, error)
	PutLink(ctx context.Context, req pathstore.LinkRequest) error
}

// Publisher writes indicators and hunt plans to pathstore under
// threatintel/. Each indicator is one node shared across reports and
// linked from every report that mentions it.
type Publisher struct {
	store NodeStore
	log   *slog.Logger
	now   func() time.Time
}

func NewPublisher(store NodeStore, log *slog.Logger) *Publisher {
	return &Publisher{store: store, log: log, now: time.Now}
}

// ReportKey is the node path for a source document.
func ReportKey(source string) string {
	return "threatintel/reports/" + Slugify(stripScheme(source))
}

// IndicatorKey is the node path for one indicator.
func IndicatorKey(ind aggregate.Indicator) string {
	return fmt.Sprintf("threatintel/iocs/%s/%s", ind.Type, Slugify(ind.Value))
}

// PublishIntel stores the report node, one node per indicator and a link from
// the report to each indicator. It returns the number of indicators written.
// Individual indicator failures are logged and skipped.
func (p *Publisher) PublishIntel(ctx context.Context, source string, intel *aggregate.Intel) (int, error) {
	reportKey := ReportKey(source)
	now := p.now().UTC().Format(time.RFC3339)

	err := p.store.PutNode(ctx, reportKey+"/meta", pathstore.NodeRequest{
		Value: map[string]any{
			"source":       source,
			"indicators":   intel.Len(),
			"summary":      intel.Summary(),
			"published_at": now,
		},
		MemoryType: "episodic",
		Salience:   0.5,
		Source:     "huntgest:" + source,
	})
	if err != nil {
		return 0, fmt.Errorf("publish report %s: %w", source, err)
	}

	written := 0
	for _, ind := range intel.Indicators {
		key := IndicatorKey(ind)
		firstSeen := now
		if prev, err := p.store.GetNode(ctx, key); err == nil && prev != nil {
			if m, ok := prev.Value.(map[string]any); ok {
				if fs, ok := m["first_seen"].(string); ok && fs != "" {
					firstSeen = fs
				}
			}
		}

		err := p.store.PutNode(ctx, key, pathstore.NodeRequest{
			Value: map[string]any{
				"type":       string(ind.Type),
				"value":      ind.Value,
				"context":    ind.JoinedContext(),
				"first_seen": firstSeen,
				"last_seen":  now,
			},
			MergeMode:  "merge",
			MemoryType: "semantic",
			Salience:   0.7,
			Source:     "huntgest:" + source,
		})
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			p.log.Warn("indicator publish failed", "key", key, "error", err)
			continue
		}
		if err := p.store.PutLink(ctx, pathstore.LinkRequest{
			From:    reportKey + "/meta",
			To:      key,
			Weight:  1,
			Summary: "mentions",
		}); err != nil {
			p.log.Warn("link publish failed", "from", reportKey, "to", key, "error", err)
		}
		written++
	}
	p.log.Info("published indicators", "source", source, "written", written, "total", intel.Len())
	return written, nil
}

// PublishPlan stores a hunt plan under the report's node.
func (p *Publisher) PublishPlan(ctx context.Context, plan *hunt.Plan) error {
	key := ReportKey(plan.SourceDocument) + "/hunt"
	err := p.store.PutNode(ctx, key, pathstore.NodeRequest{
		Value:      plan,
		MemoryType: "procedural",
		Salience:   0.6,
		Source:     "huntgest:" + plan.SourceDocument,
	})
	if err != nil {
		return fmt.Errorf("publish plan: %w", err)
	}
	return nil
}
