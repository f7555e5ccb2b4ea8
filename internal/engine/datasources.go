package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/quality"
)

var validSourceTypes = map[string]bool{
	"epidemiological": true,
	"intervention":    true,
	"demographic":     true,
	"geospatial":      true,
	"entomological":   true,
	"commodities":     true,
}

// DataSourceCreateOptions are parameters for registering a data source.
// CSV, when present, is parsed to fill record_count and file_size_bytes.
type DataSourceCreateOptions struct {
	ProjectID      string
	Name           string
	Description    string
	SourceType     string
	FileFormat     string
	YearStart      *int
	YearEnd        *int
	Disaggregation *quality.Expectations
	CSV            []byte
	ActorID        string
}

func (e Engine) RegisterDataSource(ctx context.Context, opts DataSourceCreateOptions) (domain.DataSource, error) {
	if opts.Name == "" {
		return domain.DataSource{}, errors.New("name is required")
	}
	if !validSourceTypes[opts.SourceType] {
		return domain.DataSource{}, fmt.Errorf("invalid source type %s", opts.SourceType)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.DataSource{}, err
	}
	now := e.nowRFC()
	ds := domain.DataSource{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Name:        opts.Name,
		Description: optionalString(opts.Description),
		SourceType:  opts.SourceType,
		FileFormat:  optionalString(opts.FileFormat),
		YearStart:   opts.YearStart,
		YearEnd:     opts.YearEnd,
		UploadedBy:  opts.ActorID,
		CreatedAt:   now,
	}
	if opts.Disaggregation != nil {
		dj, err := marshalJSON(opts.Disaggregation)
		if err != nil {
			return ds, err
		}
		ds.DisaggregationJSON = dj
	}
	if len(opts.CSV) > 0 {
		size := int64(len(opts.CSV))
		ds.FileSizeBytes = &size
		if ds.FileFormat == nil {
			csv := "csv"
			ds.FileFormat = &csv
		}
		if t, err := quality.FromCSV(bytes.NewReader(opts.CSV)); err == nil {
			n := int64(len(t.Rows))
			ds.RecordCount = &n
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ds, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDataSourceTx(ctx, tx, ds); err != nil {
		return ds, err
	}
	if err := e.Events.Append(ctx, tx, "datasource.registered", ds.ProjectID, "data_source", ds.ID, opts.ActorID, events.EventPayload{
		"name":        ds.Name,
		"source_type": ds.SourceType,
	}); err != nil {
		return ds, err
	}
	if err := tx.Commit(); err != nil {
		return ds, err
	}
	return ds, nil
}

func (e Engine) DeleteDataSource(ctx context.Context, id, actorID string) error {
	ds, err := e.Repo.GetDataSource(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteQualityChecksTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.DeleteDataSourceTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "datasource.deleted", ds.ProjectID, "data_source", ds.ID, actorID, events.EventPayload{"name": ds.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// QualityReport is a data source's quality report as seen by a client.
type QualityReport struct {
	DataSourceID    string                `json:"data_source_id"`
	DataSourceName  string                `json:"data_source_name"`
	OverallScore    *float64              `json:"overall_score,omitempty"`
	Checks          []domain.QualityCheck `json:"checks"`
	Recommendations []string              `json:"recommendations"`
}

// RunQualityChecks parses the submitted CSV, runs the full check battery,
// replaces previously stored checks, and stamps the overall score on the
// data source.
func (e Engine) RunQualityChecks(ctx context.Context, dataSourceID string, csv []byte, actorID string) (QualityReport, error) {
	ds, err := e.Repo.GetDataSource(ctx, dataSourceID)
	if err != nil {
		return QualityReport{}, err
	}
	t, err := quality.FromCSV(bytes.NewReader(csv))
	if err != nil {
		return QualityReport{}, fmt.Errorf("parse data: %w", err)
	}
	var expected quality.Expectations
	if ds.DisaggregationJSON != nil {
		_ = unmarshalInto(*ds.DisaggregationJSON, &expected)
	}
	report := quality.RunAll(t, expected)

	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return QualityReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteQualityChecksTx(ctx, tx, ds.ID); err != nil {
		return QualityReport{}, err
	}
	out := QualityReport{
		DataSourceID:    ds.ID,
		DataSourceName:  ds.Name,
		OverallScore:    &report.OverallScore,
		Recommendations: nonNilStrings(report.Recommendations),
	}
	for _, c := range report.Checks {
		detailsJSON, err := marshalJSON(c.Details)
		if err != nil {
			return out, err
		}
		qc := domain.QualityCheck{
			ID:           uuid.NewString(),
			DataSourceID: ds.ID,
			CheckType:    c.Type,
			Status:       c.Status,
			Score:        c.Score,
			IssuesFound:  c.Issues,
			Message:      optionalString(c.Message),
			DetailsJSON:  detailsJSON,
			CreatedAt:    now,
		}
		if err := e.Repo.InsertQualityCheckTx(ctx, tx, qc); err != nil {
			return out, err
		}
		out.Checks = append(out.Checks, qc)
	}
	if err := e.Repo.SetDataSourceQualityScoreTx(ctx, tx, ds.ID, report.OverallScore); err != nil {
		return out, err
	}
	if err := e.Events.Append(ctx, tx, "datasource.quality.checked", ds.ProjectID, "data_source", ds.ID, actorID, events.EventPayload{
		"overall_score": report.OverallScore,
	}); err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	return out, nil
}

// GetQualityReport assembles the stored report for a data source.
func (e Engine) GetQualityReport(ctx context.Context, dataSourceID string) (QualityReport, error) {
	ds, err := e.Repo.GetDataSource(ctx, dataSourceID)
	if err != nil {
		return QualityReport{}, err
	}
	checks, err := e.Repo.ListQualityChecks(ctx, dataSourceID)
	if err != nil {
		return QualityReport{}, err
	}
	var recs []string
	for _, c := range checks {
		if c.Score < 0.7 {
			recs = append(recs, fmt.Sprintf("Improve %s: score is %.0f%%", c.CheckType, c.Score*100))
		}
		if c.IssuesFound > 0 {
			recs = append(recs, fmt.Sprintf("Review %d issues in %s check", c.IssuesFound, c.CheckType))
		}
	}
	return QualityReport{
		DataSourceID:    ds.ID,
		DataSourceName:  ds.Name,
		OverallScore:    ds.QualityScore,
		Checks:          checks,
		Recommendations: nonNilStrings(recs),
	}, nil
}
