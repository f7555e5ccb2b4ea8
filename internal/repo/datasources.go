package repo

import (
	"context"
	"database/sql"

	"sntplan/internal/domain"
)

const dataSourceCols = `id,project_id,name,description,source_type,file_format,file_size_bytes,record_count,year_start,year_end,quality_score,disaggregation_json,uploaded_by,created_at`

func scanDataSource(scan func(dest ...any) error) (domain.DataSource, error) {
	var ds domain.DataSource
	var desc, format, disagg sql.NullString
	var size, count sql.NullInt64
	var yearStart, yearEnd sql.NullInt64
	var score sql.NullFloat64
	err := scan(&ds.ID, &ds.ProjectID, &ds.Name, &desc, &ds.SourceType, &format, &size, &count, &yearStart, &yearEnd, &score, &disagg, &ds.UploadedBy, &ds.CreatedAt)
	if err == sql.ErrNoRows {
		return ds, ErrNotFound
	}
	if err != nil {
		return ds, err
	}
	ds.Description = nullStringPtr(desc)
	ds.FileFormat = nullStringPtr(format)
	ds.FileSizeBytes = nullInt64Ptr(size)
	ds.RecordCount = nullInt64Ptr(count)
	ds.YearStart = nullIntPtr(yearStart)
	ds.YearEnd = nullIntPtr(yearEnd)
	ds.QualityScore = nullFloatPtr(score)
	ds.DisaggregationJSON = nullStringPtr(disagg)
	return ds, nil
}

func (r Repo) InsertDataSourceTx(ctx context.Context, tx *sql.Tx, ds domain.DataSource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO data_sources(`+dataSourceCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ds.ID, ds.ProjectID, ds.Name, nullableStringPtr(ds.Description), ds.SourceType, nullableStringPtr(ds.FileFormat),
		nullableInt64Ptr(ds.FileSizeBytes), nullableInt64Ptr(ds.RecordCount), nullableIntPtr(ds.YearStart), nullableIntPtr(ds.YearEnd),
		nullableFloatPtr(ds.QualityScore), nullableStringPtr(ds.DisaggregationJSON), ds.UploadedBy, ds.CreatedAt)
	return err
}

func (r Repo) GetDataSource(ctx context.Context, id string) (domain.DataSource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dataSourceCols+` FROM data_sources WHERE id=?`, id)
	return scanDataSource(row.Scan)
}

func (r Repo) GetDataSourceTx(ctx context.Context, tx *sql.Tx, id string) (domain.DataSource, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+dataSourceCols+` FROM data_sources WHERE id=?`, id)
	return scanDataSource(row.Scan)
}

func (r Repo) ListDataSources(ctx context.Context, projectID string) ([]domain.DataSource, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+dataSourceCols+` FROM data_sources WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ds)
	}
	return res, rows.Err()
}

func (r Repo) SetDataSourceQualityScoreTx(ctx context.Context, tx *sql.Tx, id string, score float64) error {
	res, err := tx.ExecContext(ctx, `UPDATE data_sources SET quality_score=? WHERE id=?`, score, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDataSourceTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const qualityCheckCols = `id,data_source_id,check_type,status,score,issues_found,message,details_json,created_at`

func scanQualityCheck(scan func(dest ...any) error) (domain.QualityCheck, error) {
	var qc domain.QualityCheck
	var message, details sql.NullString
	err := scan(&qc.ID, &qc.DataSourceID, &qc.CheckType, &qc.Status, &qc.Score, &qc.IssuesFound, &message, &details, &qc.CreatedAt)
	if err == sql.ErrNoRows {
		return qc, ErrNotFound
	}
	if err != nil {
		return qc, err
	}
	qc.Message = nullStringPtr(message)
	qc.DetailsJSON = nullStringPtr(details)
	return qc, nil
}

func (r Repo) InsertQualityCheckTx(ctx context.Context, tx *sql.Tx, qc domain.QualityCheck) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO data_quality_checks(`+qualityCheckCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		qc.ID, qc.DataSourceID, qc.CheckType, qc.Status, qc.Score, qc.IssuesFound,
		nullableStringPtr(qc.Message), nullableStringPtr(qc.DetailsJSON), qc.CreatedAt)
	return err
}

func (r Repo) DeleteQualityChecksTx(ctx context.Context, tx *sql.Tx, dataSourceID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM data_quality_checks WHERE data_source_id=?`, dataSourceID)
	return err
}

func (r Repo) ListQualityChecks(ctx context.Context, dataSourceID string) ([]domain.QualityCheck, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+qualityCheckCols+` FROM data_quality_checks WHERE data_source_id=? ORDER BY created_at DESC, id ASC`, dataSourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QualityCheck
	for rows.Next() {
		qc, err := scanQualityCheck(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, qc)
	}
	return res, rows.Err()
}
