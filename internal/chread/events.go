// Package chread reads persisted analysis events back out of ClickHouse.
package chread

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Reader provides read access to the ClickHouse analysis_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewReader(conn driver.Conn, logger *zap.Logger) *Reader {
	return &Reader{conn: conn, logger: logger}
}

// AnalysisRow is a single row from the analysis_events table.
type AnalysisRow struct {
	InteractionID     string    `json:"interactionId"`
	TabID             int32     `json:"tabId"`
	Service           string    `json:"service"`
	URL               string    `json:"url"`
	Stage             string    `json:"stage"`
	Timestamp         time.Time `json:"timestamp"`
	BiasScore         float32   `json:"biasScore"`
	BiasLevel         string    `json:"biasLevel"`
	PrivacyScore      float32   `json:"privacyScore"`
	PrivacyLevel      string    `json:"privacyLevel"`
	SafetyScore       float32   `json:"safetyScore"`
	SafetyLevel       string    `json:"safetyLevel"`
	TransparencyScore float32   `json:"transparencyScore"`
	TransparencyLevel string    `json:"transparencyLevel"`
	OverallScore      float32   `json:"overallScore"`
	Rating            string    `json:"rating"`
}

// ListAnalysesParams holds filters and pagination for history listing.
type ListAnalysesParams struct {
	Service       *string
	Stage         *string
	Rating        *string
	TabID         *int32
	InteractionID *string
	StartTime     *time.Time
	EndTime       *time.Time
	Page          int
	PageSize      int
}

// Normalize clamps paging to sane bounds.
func (p *ListAnalysesParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// filter builds the WHERE clause and its named args.
func filter(params ListAnalysesParams) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if params.Service != nil {
		conditions = append(conditions, "service = @service")
		args = append(args, clickhouse.Named("service", *params.Service))
	}
	if params.Stage != nil {
		conditions = append(conditions, "stage = @stage")
		args = append(args, clickhouse.Named("stage", *params.Stage))
	}
	if params.Rating != nil {
		conditions = append(conditions, "rating = @rating")
		args = append(args, clickhouse.Named("rating", *params.Rating))
	}
	if params.TabID != nil {
		conditions = append(conditions, "tab_id = @tab_id")
		args = append(args, clickhouse.Named("tab_id", *params.TabID))
	}
	if params.InteractionID != nil {
		conditions = append(conditions, "interaction_id = @interaction_id")
		args = append(args, clickhouse.Named("interaction_id", *params.InteractionID))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}
	return strings.Join(conditions, " AND "), args
}

const selectColumns = "interaction_id, tab_id, service, url, stage, timestamp, " +
	"bias_score, bias_level, privacy_score, privacy_level, " +
	"safety_score, safety_level, transparency_score, transparency_level, " +
	"overall_score, rating"

// ListAnalyses returns paginated, filtered analysis events and the total count.
func (r *Reader) ListAnalyses(ctx context.Context, params ListAnalysesParams) ([]AnalysisRow, int, error) {
	params.Normalize()
	where, args := filter(params)
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM analysis_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListAnalyses count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM analysis_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		selectColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAnalyses query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []AnalysisRow{}
	for rows.Next() {
		var a AnalysisRow
		if err := rows.Scan(
			&a.InteractionID, &a.TabID, &a.Service, &a.URL, &a.Stage, &a.Timestamp,
			&a.BiasScore, &a.BiasLevel, &a.PrivacyScore, &a.PrivacyLevel,
			&a.SafetyScore, &a.SafetyLevel, &a.TransparencyScore, &a.TransparencyLevel,
			&a.OverallScore, &a.Rating,
		); err != nil {
			return nil, 0, fmt.Errorf("ListAnalyses scan: %w", err)
		}
		out = append(out, a)
	}
	return out, int(total), rows.Err()
}

// ServiceSummary aggregates completed analyses for one service.
type ServiceSummary struct {
	Service         string  `json:"service"`
	Interactions    int     `json:"interactions"`
	AvgOverall      float64 `json:"avgOverall"`
	AvgBias         float64 `json:"avgBias"`
	AvgPrivacy      float64 `json:"avgPrivacy"`
	AvgSafety       float64 `json:"avgSafety"`
	AvgTransparency float64 `json:"avgTransparency"`
	Poor            int     `json:"poor"`
}

// SummarizeServices returns per-service averages over analyses completed
// at or after since.
func (r *Reader) SummarizeServices(ctx context.Context, since time.Time) ([]ServiceSummary, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT service, count() AS n, avg(overall_score), avg(bias_score), avg(privacy_score), "+
			"avg(safety_score), avg(transparency_score), countIf(rating = 'Poor') "+
			"FROM analysis_events "+
			"WHERE stage = 'complete' AND timestamp >= @since "+
			"GROUP BY service ORDER BY n DESC",
		clickhouse.Named("since", since),
	)
	if err != nil {
		return nil, fmt.Errorf("SummarizeServices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []ServiceSummary{}
	for rows.Next() {
		var s ServiceSummary
		var n, poor uint64
		var overall, bias, priv, safe, transp float64
		if err := rows.Scan(&s.Service, &n, &overall, &bias, &priv, &safe, &transp, &poor); err != nil {
			return nil, fmt.Errorf("SummarizeServices scan: %w", err)
		}
		s.Interactions = int(n)
		s.Poor = int(poor)
		s.AvgOverall = safeFloat(overall)
		s.AvgBias = safeFloat(bias)
		s.AvgPrivacy = safeFloat(priv)
		s.AvgSafety = safeFloat(safe)
		s.AvgTransparency = safeFloat(transp)
		out = append(out, s)
	}
	return out, rows.Err()
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for avg() on empty groups.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
