// Package sqlgen lowers a Query Model graph (package qm) to SQL text
// for a given dialect.Dialect. It compiles every frame as a
// self-contained FROM-clause fragment and every series as a scalar
// SQL expression, correlating patient-domain aggregates back to the
// enclosing patient via patient_id, the same shape ehrQL's own query
// engine compiles to (a tree of correlated subqueries) rather than
// sqldef's own AST (sqldef never compiles an expression tree to
// SQL text — it only ever diffs and re-emits DDL — so this package's
// expression compiler has no direct teacher analogue; the frame/alias
// bookkeeping idiom below follows the same "build up a string.Builder
// while tracking a small context struct" shape sqldef's generator
// package uses for DDL).
//
// Every access to another table, whether an event-domain source or a
// second patient-domain table, is compiled as a correlated subquery
// keyed on patient_id. This is deliberately the simplest relational
// lowering that is still correct, not a join-flattening query
// planner: a production optimizer would flatten many of these
// subqueries into joins, but doing so correctly (without duplicating
// rows across multiple one-to-many joins) is exactly the class of bug
// Sort/PickOneRowPerPatient's one-row-per-patient guarantee exists to
// keep out of scope, so this package does not attempt it.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/opensafely-core/ehrql-go/dialect"
	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
	"github.com/opensafely-core/ehrql-go/util"
)

// PatientIDColumn is the column name every table in the registry is
// expected to carry, the join key every correlated subquery filters
// on.
const PatientIDColumn = "patient_id"

// frameSQL is a compiled frame: a FROM-clause fragment (already
// wrapped in "(...) AS alias" or a bare table reference), the SQL
// expression for each of its columns, and the expression for its own
// patient_id column.
type frameSQL struct {
	From          string
	Alias         string
	Columns       map[string]string
	PatientIDExpr string
}

type aliasGen struct{ n int }

func (g *aliasGen) next() string {
	g.n++
	return fmt.Sprintf("t%d", g.n)
}

// Compiler lowers qm graphs against one dialect and table registry
// naming convention. Each Compile* call is independent; nothing is
// cached across calls because every dataset compiles once per run.
type Compiler struct {
	Dialect dialect.Dialect
	aliases aliasGen
}

func New(d dialect.Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// CompileDataset lowers a population condition and a set of named
// variables into one SELECT statement: one row per patient_id drawn
// from patientsTable (the backend's canonical patient-domain table)
// satisfying population, with one correlated-subquery column per
// variable.
func (c *Compiler) CompileDataset(patientsTable string, population qm.SeriesNode, variables map[string]qm.SeriesNode) (string, error) {
	alias := c.aliases.next()
	pk := alias + "." + c.Dialect.QuoteIdent(PatientIDColumn)

	popExpr, err := c.compileSeries(population, c.rootFrame(alias, pk, population), pk)
	if err != nil {
		return "", fmt.Errorf("sqlgen: compiling population: %w", err)
	}

	var cols strings.Builder
	fmt.Fprintf(&cols, "%s AS %s", pk, c.Dialect.QuoteIdent(PatientIDColumn))
	var compileErr error
	for name, variable := range util.CanonicalMapIter(variables) {
		expr, err := c.compileSeries(variable, c.rootFrame(alias, pk, variable), pk)
		if err != nil {
			compileErr = fmt.Errorf("sqlgen: compiling variable %q: %w", name, err)
			break
		}
		fmt.Fprintf(&cols, ",\n  %s AS %s", expr, c.Dialect.QuoteIdent(name))
	}
	if compileErr != nil {
		return "", compileErr
	}

	query := fmt.Sprintf(
		"SELECT\n  %s\nFROM %s AS %s\nWHERE %s",
		cols.String(),
		c.Dialect.QuoteIdent(patientsTable),
		alias,
		popExpr,
	)
	return query, nil
}

// compileFrame lowers a FrameNode to a self-contained FROM fragment.
func (c *Compiler) compileFrame(n qm.FrameNode) (*frameSQL, error) {
	switch v := n.(type) {
	case *qm.SelectTable:
		return c.baseTable(v.TableName, v.Schema.Columns)
	case *qm.SelectPatientTable:
		return c.baseTable(v.TableName, v.Schema.Columns)
	case *qm.InlinePatientTable:
		return c.inlineTable(v)
	case *qm.Filter:
		return c.compileFilter(v)
	case *qm.Sort:
		// A bare Sort outside a PickOneRowPerPatient carries no
		// relational meaning (SQL result sets are unordered bags), so
		// it lowers as a passthrough of its source.
		return c.compileFrame(v.Source)
	case *qm.PickOneRowPerPatient:
		return c.compilePick(v)
	default:
		return nil, fmt.Errorf("sqlgen: unhandled frame kind %T", n)
	}
}

func (c *Compiler) baseTable(tableName string, columns []schema.Column) (*frameSQL, error) {
	alias := c.aliases.next()
	cols := make(map[string]string, len(columns))
	for _, col := range columns {
		cols[col.Name] = alias + "." + c.Dialect.QuoteIdent(col.Name)
	}
	return &frameSQL{
		From:          c.Dialect.QuoteIdent(tableName) + " AS " + alias,
		Alias:         alias,
		Columns:       cols,
		PatientIDExpr: alias + "." + c.Dialect.QuoteIdent(PatientIDColumn),
	}, nil
}

func (c *Compiler) inlineTable(v *qm.InlinePatientTable) (*frameSQL, error) {
	alias := c.aliases.next()
	colNames := make([]string, len(v.Schema.Columns))
	for i, col := range v.Schema.Columns {
		colNames[i] = col.Name
	}
	var rows []string
	for _, row := range v.Rows {
		vals := make([]string, len(row))
		for i, val := range row {
			lit, err := c.literalSQL(val)
			if err != nil {
				return nil, err
			}
			vals[i] = lit
		}
		rows = append(rows, "("+strings.Join(vals, ", ")+")")
	}
	quotedCols := make([]string, len(colNames))
	for i, name := range colNames {
		quotedCols[i] = c.Dialect.QuoteIdent(name)
	}
	from := fmt.Sprintf(
		"(SELECT * FROM (VALUES %s) AS %s(%s)) AS %s",
		strings.Join(rows, ", "), alias, strings.Join(quotedCols, ", "), alias,
	)
	cols := make(map[string]string, len(colNames))
	for _, name := range colNames {
		cols[name] = alias + "." + c.Dialect.QuoteIdent(name)
	}
	return &frameSQL{
		From:          from,
		Alias:         alias,
		Columns:       cols,
		PatientIDExpr: alias + "." + c.Dialect.QuoteIdent(PatientIDColumn),
	}, nil
}

func (c *Compiler) compileFilter(v *qm.Filter) (*frameSQL, error) {
	src, err := c.compileFrame(v.Source)
	if err != nil {
		return nil, err
	}
	cond, err := c.compileSeries(v.Condition, src, src.PatientIDExpr)
	if err != nil {
		return nil, err
	}
	alias := c.aliases.next()
	from := fmt.Sprintf("(SELECT * FROM %s WHERE %s) AS %s", src.From, cond, alias)
	return rewrapColumns(src, from, alias, c.Dialect), nil
}

func (c *Compiler) compilePick(v *qm.PickOneRowPerPatient) (*frameSQL, error) {
	base, orderExprs, err := c.unstackSort(v.Source)
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	if v.Position == qm.LAST {
		dir = "DESC"
	}
	orderItems := make([]string, len(orderExprs))
	for i, e := range orderExprs {
		orderItems[i] = e + " " + dir
	}
	rankedAlias := c.aliases.next()
	outerAlias := c.aliases.next()
	rowNumCol := c.Dialect.QuoteIdent("_row_num")

	colNames := make([]string, 0, len(base.Columns))
	for name := range util.CanonicalMapIter(base.Columns) {
		colNames = append(colNames, name)
	}
	quoted := make([]string, len(colNames))
	for i, name := range colNames {
		quoted[i] = c.Dialect.QuoteIdent(name)
	}
	if _, ok := base.Columns[PatientIDColumn]; !ok {
		quoted = append(quoted, c.Dialect.QuoteIdent(PatientIDColumn))
	}

	ranked :=fmt.Sprintf(
		"(SELECT %s.*, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM %s) AS %s",
		base.Alias, base.PatientIDExpr, strings.Join(orderItems, ", "), rowNumCol, base.From, rankedAlias,
	)
	from := fmt.Sprintf(
		"(SELECT %s FROM %s WHERE %s.%s = 1) AS %s",
		strings.Join(quoted, ", "), ranked, rankedAlias, rowNumCol, outerAlias,
	)

	cols := make(map[string]string, len(colNames))
	for _, name := range colNames {
		cols[name] = outerAlias + "." + c.Dialect.QuoteIdent(name)
	}
	return &frameSQL{
		From:          from,
		Alias:         outerAlias,
		Columns:       cols,
		PatientIDExpr: outerAlias + "." + c.Dialect.QuoteIdent(PatientIDColumn),
	}, nil
}

// unstackSort compiles a Sort chain's base frame once, then compiles
// every sort key against that single frame context, returned
// outermost (highest priority) first for direct use in ORDER BY.
func (c *Compiler) unstackSort(outer *qm.Sort) (*frameSQL, []string, error) {
	var keys []*qm.Sort
	var cur qm.FrameNode = outer
	for {
		s, ok := cur.(*qm.Sort)
		if !ok {
			break
		}
		keys = append(keys, s)
		cur = s.Source
	}
	base, err := c.compileFrame(cur)
	if err != nil {
		return nil, nil, err
	}
	exprs := make([]string, len(keys))
	for i, s := range keys {
		e, err := c.compileSeries(s.By, base, base.PatientIDExpr)
		if err != nil {
			return nil, nil, err
		}
		exprs[i] = e
	}
	return base, exprs, nil
}

func rewrapColumns(src *frameSQL, from, alias string, d dialect.Dialect) *frameSQL {
	cols := make(map[string]string, len(src.Columns))
	for name := range src.Columns {
		cols[name] = alias + "." + d.QuoteIdent(name)
	}
	return &frameSQL{
		From:          from,
		Alias:         alias,
		Columns:       cols,
		PatientIDExpr: alias + "." + d.QuoteIdent(PatientIDColumn),
	}
}

// compileSeries lowers a SeriesNode to a scalar SQL expression. fc is
// the frame context a bare SelectColumn resolves against; it is nil
// when n is known to be patient-domain and every leaf beneath it
// supplies its own frame (aggregates, literals). outerPK is the SQL
// expression for "the enclosing row's patient_id", used to correlate
// any aggregate subquery this call compiles.
func (c *Compiler) compileSeries(n qm.SeriesNode, fc *frameSQL, outerPK string) (string, error) {
	switch v := n.(type) {
	case *qm.SelectColumn:
		if fc != nil {
			if expr, ok := fc.Columns[v.Name]; ok {
				return expr, nil
			}
		}
		if pick, ok := v.Source.(*qm.PickOneRowPerPatient); ok {
			// A column read off a pick from outside the pick's own frame
			// compiles as a correlated subquery over the picked rows.
			src, err := c.compilePick(pick)
			if err != nil {
				return "", err
			}
			expr, ok := src.Columns[v.Name]
			if !ok {
				return "", fmt.Errorf("sqlgen: picked frame has no column %q", v.Name)
			}
			return fmt.Sprintf("(SELECT %s FROM %s WHERE %s = %s)", expr, src.From, src.PatientIDExpr, outerPK), nil
		}
		if fc == nil {
			return "", fmt.Errorf("sqlgen: SelectColumn %q reached with no frame context", v.Name)
		}
		return "", fmt.Errorf("sqlgen: frame has no column %q", v.Name)

	case *qm.Value:
		return c.compileValue(v)

	case *qm.AggregateExists:
		src, err := c.compileFrame(v.Source)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s)", src.From, src.PatientIDExpr, outerPK), nil

	case *qm.AggregateCount:
		src, err := c.compileFrame(v.Source)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE %s = %s)", src.From, src.PatientIDExpr, outerPK), nil

	case *qm.AggregateValue:
		return c.compileAggregateValue(v, outerPK)

	case *qm.Function:
		return c.compileFunction(v, fc, outerPK)

	case *qm.Case:
		return c.compileCase(v, fc, outerPK)

	default:
		return "", fmt.Errorf("sqlgen: unhandled series kind %T", n)
	}
}

// rootFrame resolves the frame context a population condition or a
// dataset variable needs for any SelectColumn it reads straight off
// the dataset's own patient table (as opposed to one reached through
// a nested AggregateExists/Count/Value or PickOneRowPerPatient, which
// build and correlate their own frame independently of the one
// returned here). Those direct reads resolve against alias, the same
// table instance the surrounding SELECT's FROM clause already joins,
// not a fresh one.
func (c *Compiler) rootFrame(alias, pk string, n qm.SeriesNode) *frameSQL {
	table, ok := directRootTable(n)
	if !ok {
		return &frameSQL{Alias: alias, PatientIDExpr: pk}
	}
	cols := make(map[string]string, len(table.Schema.Columns))
	for _, col := range table.Schema.Columns {
		cols[col.Name] = alias + "." + c.Dialect.QuoteIdent(col.Name)
	}
	return &frameSQL{Alias: alias, PatientIDExpr: pk, Columns: cols}
}

// directRootTable walks exactly the path compileSeries/compileFunction/
// compileCase follow when they forward a frame context unchanged
// (Function args, Case branches and default), looking for a
// SelectColumn sourced straight from the patient table. It stops at
// any node kind that establishes its own frame instead of consuming
// the caller's (Value, AggregateExists, AggregateCount, AggregateValue),
// since those never need rootFrame's result.
func directRootTable(n qm.SeriesNode) (*qm.SelectPatientTable, bool) {
	switch v := n.(type) {
	case *qm.SelectColumn:
		table, ok := v.Source.(*qm.SelectPatientTable)
		return table, ok
	case *qm.Function:
		for _, a := range v.Args {
			if t, ok := directRootTable(a); ok {
				return t, true
			}
		}
		return nil, false
	case *qm.Case:
		for _, b := range v.Cases {
			if t, ok := directRootTable(b.Condition); ok {
				return t, true
			}
			if t, ok := directRootTable(b.Value); ok {
				return t, true
			}
		}
		if v.Default != nil {
			return directRootTable(v.Default)
		}
		return nil, false
	default:
		return nil, false
	}
}

// underlyingFrame finds the FrameNode a series expression's columns
// are drawn from, by locating any SelectColumn beneath it. Every leaf
// of an event-domain series shares the same frame by construction
// (domain compatibility is validated when the series is built), so
// the first one found is representative of all of them.
func underlyingFrame(n qm.Node) (qm.FrameNode, bool) {
	found := qm.Find(n, func(n qm.Node) bool {
		_, ok := n.(*qm.SelectColumn)
		return ok
	})
	if len(found) == 0 {
		return nil, false
	}
	return found[0].(*qm.SelectColumn).Source, true
}

func (c *Compiler) compileAggregateValue(v *qm.AggregateValue, outerPK string) (string, error) {
	frame, ok := underlyingFrame(v.Source)
	if !ok {
		return "", fmt.Errorf("sqlgen: AggregateValue operand has no underlying table column")
	}
	src, err := c.compileFrame(frame)
	if err != nil {
		return "", err
	}
	inner, err := c.compileSeries(v.Source, src, src.PatientIDExpr)
	if err != nil {
		return "", err
	}
	var aggSQL string
	switch v.Op {
	case qm.AggMin:
		aggSQL = fmt.Sprintf("MIN(%s)", inner)
	case qm.AggMax:
		aggSQL = fmt.Sprintf("MAX(%s)", inner)
	case qm.AggSum:
		aggSQL = fmt.Sprintf("SUM(%s)", inner)
	case qm.AggMean:
		aggSQL = c.Dialect.MeanAggExpr(inner)
	case qm.AggCombineAsSet:
		// No portable aggregate produces a set value across both
		// principal dialects. CombineAsSet lowers to MIN over the
		// correlated rows, so the SQL result is one member of the set,
		// not the set itself; nothing downstream re-groups the rows.
		aggSQL = fmt.Sprintf("MIN(%s)", inner)
	default:
		return "", fmt.Errorf("sqlgen: unhandled aggregate op %s", v.Op)
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s = %s)", aggSQL, src.From, src.PatientIDExpr, outerPK), nil
}

func (c *Compiler) compileFunction(v *qm.Function, fc *frameSQL, outerPK string) (string, error) {
	args := make([]string, len(v.Args))
	for i, a := range v.Args {
		e, err := c.compileSeries(a, fc, outerPK)
		if err != nil {
			return "", err
		}
		args[i] = e
	}
	switch v.Op {
	case qm.OpEQ:
		return binary(args, "="), nil
	case qm.OpNE:
		return binary(args, "<>"), nil
	case qm.OpLT:
		return binary(args, "<"), nil
	case qm.OpLE:
		return binary(args, "<="), nil
	case qm.OpGT:
		return binary(args, ">"), nil
	case qm.OpGE:
		return binary(args, ">="), nil
	case qm.OpAnd:
		return fmt.Sprintf("(%s AND %s)", args[0], args[1]), nil
	case qm.OpOr:
		return fmt.Sprintf("(%s OR %s)", args[0], args[1]), nil
	case qm.OpNot:
		return fmt.Sprintf("(NOT %s)", args[0]), nil
	case qm.OpIn:
		return fmt.Sprintf("(%s IN (%s))", args[0], strings.TrimPrefix(args[1], "SET:")), nil
	case qm.OpIsNull:
		return fmt.Sprintf("(%s IS NULL)", args[0]), nil
	case qm.OpAdd:
		return binary(args, "+"), nil
	case qm.OpSubtract:
		return binary(args, "-"), nil
	case qm.OpMultiply:
		return binary(args, "*"), nil
	case qm.OpTrueDivide:
		return fmt.Sprintf("(CAST(%s AS FLOAT) / NULLIF(%s, 0))", args[0], args[1]), nil
	case qm.OpFloorDivide:
		return c.Dialect.FloorDivideExpr(args[0], args[1]), nil
	case qm.OpNegate:
		return fmt.Sprintf("(-%s)", args[0]), nil
	case qm.OpStringContains:
		return fmt.Sprintf("(%s LIKE '%%' || %s || '%%')", args[0], args[1]), nil
	case qm.OpYearFromDate:
		return datePart("YEAR", args[0]), nil
	case qm.OpMonthFromDate:
		return datePart("MONTH", args[0]), nil
	case qm.OpDayFromDate:
		return datePart("DAY", args[0]), nil
	case qm.OpToFirstOfMonth:
		return dateTrunc("MONTH", args[0]), nil
	case qm.OpToFirstOfYear:
		return dateTrunc("YEAR", args[0]), nil
	case qm.OpDateAddDays:
		return dateAdd("DAY", args[0], args[1]), nil
	case qm.OpDateAddMonths:
		return dateAdd("MONTH", args[0], args[1]), nil
	case qm.OpDateAddYears:
		return dateAdd("YEAR", args[0], args[1]), nil
	case qm.OpDateDifferenceInDays:
		return dateDiff("DAY", args[0], args[1]), nil
	case qm.OpDateDifferenceInMonths:
		return dateDiff("MONTH", args[0], args[1]), nil
	case qm.OpDateDifferenceInYears:
		return dateDiff("YEAR", args[0], args[1]), nil
	case qm.OpCastToInt:
		return fmt.Sprintf("CAST(%s AS INTEGER)", args[0]), nil
	case qm.OpCastToFloat:
		return fmt.Sprintf("CAST(%s AS FLOAT)", args[0]), nil
	case qm.OpMinimumOf:
		return variadic("MIN", args), nil
	case qm.OpMaximumOf:
		return variadic("MAX", args), nil
	default:
		return "", fmt.Errorf("sqlgen: unhandled function op %s", v.Op)
	}
}

func (c *Compiler) compileCase(v *qm.Case, fc *frameSQL, outerPK string) (string, error) {
	var b strings.Builder
	b.WriteString("(CASE")
	for _, branch := range v.Cases {
		cond, err := c.compileSeries(branch.Condition, fc, outerPK)
		if err != nil {
			return "", err
		}
		val, err := c.compileSeries(branch.Value, fc, outerPK)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", cond, val)
	}
	if v.Default != nil {
		def, err := c.compileSeries(v.Default, fc, outerPK)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " ELSE %s", def)
	}
	b.WriteString(" END)")
	return b.String(), nil
}

func (c *Compiler) compileValue(v *qm.Value) (string, error) {
	if v.IsSet() {
		lits := make([]string, len(v.Set))
		for i, e := range v.Set {
			lit, err := c.literalSQL(e)
			if err != nil {
				return "", err
			}
			lits[i] = lit
		}
		return "SET:" + strings.Join(lits, ", "), nil
	}
	return c.literalSQL(v.Scalar)
}

func (c *Compiler) literalSQL(value any) (string, error) {
	switch val := value.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case types.DateValue:
		return c.Dialect.DateLiteral(val.String(), false), nil
	case types.CodedValue:
		return "'" + strings.ReplaceAll(val.Value, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("sqlgen: cannot render literal of type %T", value)
	}
}

func binary(args []string, op string) string {
	return fmt.Sprintf("(%s %s %s)", args[0], op, args[1])
}

func variadic(fn string, args []string) string {
	return fmt.Sprintf("%s(%s)", fn, strings.Join(args, ", "))
}

func datePart(part, expr string) string {
	return fmt.Sprintf("CAST(STRFTIME('%%%s', %s) AS INTEGER)", strftimeCode(part), expr)
}

func dateTrunc(part, expr string) string {
	switch part {
	case "MONTH":
		return fmt.Sprintf("DATE(%s, 'start of month')", expr)
	default:
		return fmt.Sprintf("DATE(%s, 'start of year')", expr)
	}
}

func dateAdd(unit, expr, amount string) string {
	return fmt.Sprintf("DATE(%s, %s || ' %ss')", expr, amount, unit)
}

// dateDiff counts whole units between b and a (a is later): the naive
// calendar-component subtraction overshoots whenever b's day-of-month
// (or month-and-day, for YEAR) falls after a's, so it clips back by
// one unit whenever adding the naive count back to b would land past
// a. Mirrors types.DiffYears/DiffMonths. SQLite's '+N months' modifier
// rolls day overflow into the next month where types.AddMonths clips,
// so the MONTH branch tests the clipped landing day directly: it
// overshoots only when b's day is after a's and a is not the last day
// of its month.
func dateDiff(unit, a, b string) string {
	switch unit {
	case "DAY":
		return fmt.Sprintf("CAST(JULIANDAY(%s) - JULIANDAY(%s) AS INTEGER)", a, b)
	case "MONTH":
		naive := fmt.Sprintf("((CAST(STRFTIME('%%Y', %s) AS INTEGER) - CAST(STRFTIME('%%Y', %s) AS INTEGER)) * 12 + (CAST(STRFTIME('%%m', %s) AS INTEGER) - CAST(STRFTIME('%%m', %s) AS INTEGER)))", a, b, a, b)
		return fmt.Sprintf("(%s - (CASE WHEN CAST(STRFTIME('%%d', %s) AS INTEGER) > CAST(STRFTIME('%%d', %s) AS INTEGER) AND %s < DATE(%s, 'start of month', '+1 month', '-1 day') THEN 1 ELSE 0 END))", naive, b, a, a, a)
	default:
		naive := fmt.Sprintf("(CAST(STRFTIME('%%Y', %s) AS INTEGER) - CAST(STRFTIME('%%Y', %s) AS INTEGER))", a, b)
		return fmt.Sprintf("(%s - (CASE WHEN DATE(%s, %s || ' years') > %s THEN 1 ELSE 0 END))", naive, b, naive, a)
	}
}

func strftimeCode(part string) string {
	switch part {
	case "YEAR":
		return "Y"
	case "MONTH":
		return "m"
	default:
		return "d"
	}
}

