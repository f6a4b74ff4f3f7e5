package spec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"sqlzibar/internal/access"
	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
	"sqlzibar/internal/storage"
)

// Specification describes a paginated, permission-gated query over one
// entity type T. The executor never constructs T's SQL by reflection: the
// caller supplies the column list and a Scan/CursorKey pair so T stays a
// concrete, typed struct.
type Specification[T any] struct {
	// Table is the entity's base relation.
	Table string
	// ResourceIDColumn is the column on Table joining to the
	// accessible-resource set's resource_id.
	ResourceIDColumn string
	// SelectColumns are the columns fetched, in the order Scan expects them.
	SelectColumns []string
	// IDColumn and SortColumn break cursor-pagination ties by id.
	IDColumn   string
	SortColumn string
	Descending bool
	// SearchColumns are substring-matched (case-insensitive, OR-combined)
	// when a non-empty search term is supplied to Run.
	SearchColumns []string
	// Scan reads one result row into a T.
	Scan func(pgx.Rows) (T, error)
	// CursorKey extracts the (sortValue, id) pair Run needs to build the
	// next page's cursor from a T already produced by Scan.
	CursorKey func(T) (sortValue, id string)
}

// Filter is a caller-supplied predicate, written with `?` placeholders in
// positional order; the executor renumbers them to fit after its own
// reserved arguments.
type Filter struct {
	Clause string
	Args   []any
}

// Result is the page Run returns.
type Result[T any] struct {
	Items      []T
	NextCursor string
}

// PermissionLookup resolves a permission's stable key, as authz.Service does.
type PermissionLookup interface {
	GetPermissionByKey(ctx context.Context, key string) (*model.Permission, error)
}

// AccessQuery supplies the query-composable accessible-resource relation.
type AccessQuery interface {
	AccessibleResourcesQuery(ctx context.Context, principalIDs []string, permission model.Permission, at time.Time) (access.ComposableQuery, error)
}

var _ AccessQuery = (*access.Resolver)(nil)

// Executor runs specifications against the store.
type Executor struct {
	db          *storage.DB
	permissions PermissionLookup
	accessQuery AccessQuery
	now         func() time.Time
}

// NewExecutor constructs a specification executor.
func NewExecutor(db *storage.DB, permissions PermissionLookup, accessQuery AccessQuery) *Executor {
	return &Executor{db: db, permissions: permissions, accessQuery: accessQuery, now: time.Now}
}

// Run executes spec for the resolved principal set, restricted to rows the
// caller may see under permissionKey, filtered by filter and an optional
// search term, returning at most pageSize items plus an opaque cursor for
// the next page (empty when exhausted).
func Run[T any](ctx context.Context, e *Executor, principalIDs []string, permissionKey string, sp Specification[T], filter Filter, search string, pageSize int, cursor string) (Result[T], error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	permission, err := e.permissions.GetPermissionByKey(ctx, permissionKey)
	if err != nil {
		return Result[T]{}, fmt.Errorf("run specification: %w", err)
	}
	if permission == nil {
		return Result[T]{}, engineerr.New(engineerr.UnknownPermission, "permission "+permissionKey+" is not registered")
	}

	cursorSortValue, cursorID, err := DecodeCursor(cursor)
	if err != nil {
		return Result[T]{}, err
	}

	accessible, err := e.accessQuery.AccessibleResourcesQuery(ctx, principalIDs, *permission, e.now())
	if err != nil {
		return Result[T]{}, fmt.Errorf("run specification: %w", err)
	}

	args := append([]any{}, accessible.Args...)
	nextArgIndex := len(args) + 1

	var whereClauses []string

	if strings.TrimSpace(filter.Clause) != "" {
		renumbered, next := renumberPlaceholders(filter.Clause, nextArgIndex)
		whereClauses = append(whereClauses, renumbered)
		args = append(args, filter.Args...)
		nextArgIndex = next
	}

	if search != "" && len(sp.SearchColumns) > 0 {
		var parts []string
		for _, col := range sp.SearchColumns {
			parts = append(parts, fmt.Sprintf("t.%s ILIKE $%d", col, nextArgIndex))
			args = append(args, "%"+search+"%")
			nextArgIndex++
		}
		whereClauses = append(whereClauses, "("+strings.Join(parts, " OR ")+")")
	}

	if cursorID != "" {
		cmp := ">"
		if sp.Descending {
			cmp = "<"
		}
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(t.%[1]s %[2]s $%[3]d OR (t.%[1]s = $%[3]d AND t.%[4]s %[2]s $%[5]d))",
			sp.SortColumn, cmp, nextArgIndex, sp.IDColumn, nextArgIndex+1,
		))
		args = append(args, cursorSortValue, cursorID)
		nextArgIndex += 2
	}

	whereSQL := "TRUE"
	if len(whereClauses) > 0 {
		whereSQL = strings.Join(whereClauses, " AND ")
	}

	direction := "ASC"
	if sp.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE %s
		SELECT %s FROM %s t
		JOIN accessible_resources ar ON ar.resource_id = t.%s
		WHERE %s
		ORDER BY t.%s %s, t.%s %s
		LIMIT $%d
	`, accessible.CTE, prefixColumns(sp.SelectColumns), sp.Table, sp.ResourceIDColumn,
		whereSQL, sp.SortColumn, direction, sp.IDColumn, direction, nextArgIndex)
	args = append(args, pageSize+1)

	rows, err := e.db.Reader().Query(ctx, query, args...)
	if err != nil {
		return Result[T]{}, fmt.Errorf("run specification: %w", err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := sp.Scan(rows)
		if err != nil {
			return Result[T]{}, fmt.Errorf("scan specification row: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return Result[T]{}, fmt.Errorf("iterate specification rows: %w", rows.Err())
	}

	result := Result[T]{Items: items}
	if len(items) > pageSize {
		result.Items = items[:pageSize]
		sv, id := sp.CursorKey(result.Items[len(result.Items)-1])
		result.NextCursor = EncodeCursor(sv, id)
	}
	return result, nil
}

func prefixColumns(cols []string) string {
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		prefixed[i] = "t." + c
	}
	return strings.Join(prefixed, ", ")
}

// renumberPlaceholders rewrites `?` placeholders in clause to sequential
// `$N` parameters starting at startIndex, skipping `?` inside single-quoted
// string literals. It returns the rewritten clause and the next free index.
func renumberPlaceholders(clause string, startIndex int) (string, int) {
	var out strings.Builder
	inQuote := false
	next := startIndex
	for _, r := range clause {
		switch {
		case r == '\'':
			inQuote = !inQuote
			out.WriteRune(r)
		case r == '?' && !inQuote:
			fmt.Fprintf(&out, "$%d", next)
			next++
		default:
			out.WriteRune(r)
		}
	}
	return out.String(), next
}
