// Package queryir describes filtered reads over recorded traces without
// committing to SQL.
//
// The store builds a Query from a caller's filter and hands it to a
// backend compiler (querysql) for execution. Keeping the description
// separate lets filters be checked and tested without a database.
//
// The supported fragment is small:
//   - Select(from, columns, filter, order) over a single table
//   - Predicates: Equals, In, And, Or
//   - Explicit columns (no SELECT *) and an explicit order
//
// Query and Predicate are sealed interfaces using the marker method
// pattern, so backends can switch over every node type exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case And:
//	case Or:
//	}
//
// Literal values are limited to strings, integers and booleans. Column
// and table names must be plain identifiers; they are interpolated into
// SQL, values never are.
package queryir
