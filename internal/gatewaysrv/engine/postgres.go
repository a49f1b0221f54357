package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// postgresEngine implements Engine against a PostgreSQL warehouse. Query
// tags are carried in application_name so they surface in
// pg_stat_activity, mirroring how warehouse query tags are used for
// attribution.
type postgresEngine struct {
	db *sql.DB
}

// OpenDB opens a connection pool against the given DSN and verifies
// connectivity. The same pool backs the engine and the registry and audit
// stores.
func OpenDB(dsn string) (*sql.DB, apperrors.Error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open engine db")
		return nil, ErrEngine.MsgErr("failed to open database connection", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Error().Err(err).Msg("failed to ping engine db")
		return nil, ErrEngine.MsgErr("failed to ping database", err)
	}
	return db, nil
}

// NewPostgres creates an Engine over an opened pool.
func NewPostgres(db *sql.DB) Engine {
	return &postgresEngine{db: db}
}

func (e *postgresEngine) Ping(ctx context.Context) apperrors.Error {
	if err := e.db.PingContext(ctx); err != nil {
		return ErrEngine.MsgErr("ping failed", err)
	}
	return nil
}

func (e *postgresEngine) IntrospectObjects(ctx context.Context) ([]RawObject, apperrors.Error) {
	// Views from information_schema; comments via obj_description. Creation
	// time is not tracked by Postgres, so both timestamps fall back to the
	// scan observing them.
	const query = `
		SELECT
			v.table_schema,
			v.table_name,
			COALESCE(obj_description(c.oid, 'pg_class'), '') AS comment
		FROM information_schema.views v
		JOIN pg_class c ON c.relname = v.table_name
		JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = v.table_schema
		WHERE v.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY v.table_schema, v.table_name
	`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to introspect views")
		return nil, ErrIntrospection.Err(err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var objects []RawObject
	for rows.Next() {
		var schema, name, comment string
		if err := rows.Scan(&schema, &name, &comment); err != nil {
			return nil, ErrIntrospection.Err(err)
		}
		objects = append(objects, RawObject{
			Kind:        KindView,
			FqName:      schema + "." + name,
			Schema:      schema,
			Comment:     comment,
			CreatedAt:   now,
			LastAltered: now,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, ErrIntrospection.Err(err)
	}

	procs, perr := e.introspectProcedures(ctx, now)
	if perr != nil {
		return nil, perr
	}
	return append(objects, procs...), nil
}

func (e *postgresEngine) introspectProcedures(ctx context.Context, now time.Time) ([]RawObject, apperrors.Error) {
	const query = `
		SELECT
			n.nspname,
			p.proname,
			COALESCE(obj_description(p.oid, 'pg_proc'), '') AS comment
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND p.prokind = 'p'
		ORDER BY n.nspname, p.proname
	`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to introspect procedures")
		return nil, ErrIntrospection.Err(err)
	}
	defer rows.Close()

	var objects []RawObject
	for rows.Next() {
		var schema, name, comment string
		if err := rows.Scan(&schema, &name, &comment); err != nil {
			return nil, ErrIntrospection.Err(err)
		}
		objects = append(objects, RawObject{
			Kind:        KindProcedure,
			FqName:      schema + "." + name,
			Schema:      schema,
			Comment:     comment,
			CreatedAt:   now,
			LastAltered: now,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, ErrIntrospection.Err(err)
	}
	return objects, nil
}

func (e *postgresEngine) IntrospectColumns(ctx context.Context, fqName string) ([]RawColumn, apperrors.Error) {
	schema, name, ok := splitFqName(fqName)
	if !ok {
		return nil, ErrUnknownObject.Msg("object name must be schema-qualified: " + fqName)
	}
	const query = `
		SELECT
			c.column_name,
			c.ordinal_position,
			c.data_type,
			c.is_nullable = 'YES',
			COALESCE(col_description(pc.oid, c.ordinal_position), '') AS comment
		FROM information_schema.columns c
		JOIN pg_class pc ON pc.relname = c.table_name
		JOIN pg_namespace n ON n.oid = pc.relnamespace AND n.nspname = c.table_schema
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`
	rows, err := e.db.QueryContext(ctx, query, schema, name)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", fqName).Msg("failed to introspect columns")
		return nil, ErrIntrospection.Err(err)
	}
	defer rows.Close()

	var cols []RawColumn
	for rows.Next() {
		var col RawColumn
		if err := rows.Scan(&col.Name, &col.Ordinal, &col.DataType, &col.Nullable, &col.Comment); err != nil {
			return nil, ErrIntrospection.Err(err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrIntrospection.Err(err)
	}
	return cols, nil
}

func (e *postgresEngine) CanRead(ctx context.Context, object, principal string) (bool, apperrors.Error) {
	var allowed bool
	err := e.db.QueryRowContext(ctx,
		`SELECT has_table_privilege($1, $2, 'SELECT')`, principal, object,
	).Scan(&allowed)
	if err != nil {
		// Unknown role or object reads as "no privilege", not an error;
		// privilege revocation must fail closed either way.
		log.Ctx(ctx).Debug().Err(err).Str("object", object).Str("principal", principal).Msg("privilege check failed")
		return false, nil
	}
	return allowed, nil
}

func (e *postgresEngine) ExecuteRead(ctx context.Context, sqlText string, tag QueryTag, maxRows int) (*ResultSet, apperrors.Error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ErrExecution.Err(err)
	}
	defer tx.Rollback()

	// application_name is capped at 63 bytes; the request id alone still
	// correlates with the audit log when the full tag does not fit.
	tagJSON, _ := json.Marshal(tag)
	tagStr := string(tagJSON)
	if len(tagStr) > 63 {
		tagStr = tag.Request
	}
	if _, err := tx.ExecContext(ctx, "SET LOCAL application_name = "+pq.QuoteLiteral(tagStr)); err != nil {
		return nil, ErrExecution.Err(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline).Milliseconds()
		if timeout <= 0 {
			return nil, ErrExecutionTimeout
		}
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = "+pq.QuoteLiteral(formatMillis(timeout))); err != nil {
			return nil, ErrExecution.Err(err)
		}
	}

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, ErrExecutionTimeout.Err(err)
		}
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	return collectRows(rows, maxRows)
}

// classifyPgError maps server-reported SQLSTATE codes onto engine errors.
// statement_timeout fires as query_canceled on the server side, so it has
// to be recognized here as well as via the context deadline.
func classifyPgError(err error) apperrors.Error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ErrExecution.Err(err)
	}
	switch pgErr.Code {
	case "57014": // query_canceled
		return ErrExecutionTimeout.Err(err)
	case "42501": // insufficient_privilege
		return ErrPrivilegeCheck.Err(err)
	case "42P01", "42703": // undefined_table, undefined_column
		return ErrUnknownObject.Msg(pgErr.Message)
	default:
		return ErrExecution.Err(err)
	}
}

func collectRows(rows *sql.Rows, maxRows int) (*ResultSet, apperrors.Error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, ErrExecution.Err(err)
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, ErrExecution.Err(err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrExecution.Err(err)
	}
	return rs, nil
}

func formatMillis(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

func splitFqName(fq string) (schema, name string, ok bool) {
	for i := 0; i < len(fq); i++ {
		if fq[i] == '.' {
			return fq[:i], fq[i+1:], i > 0 && i < len(fq)-1
		}
	}
	return "", "", false
}
