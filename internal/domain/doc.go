// Package domain defines the core business types for the prospecting cadence engine.
//
// Types in this package are value objects with no database dependencies and no
// HTTP concerns. They are the shared language between workers, services and
// repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Status transitions are declared once, in the transition tables here
//   - Constants and enums belong here
package domain
