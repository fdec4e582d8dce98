// Package resource provides the desired-state model and the reconciliation
// engine of converge.
//
// This package defines:
//   - Resource interface and the host resource kinds (file, user, group,
//     service, archive, package)
//   - Catalog, the set of resources an apply run converges toward
//   - DependencyResolver, which orders a catalog as a DAG
//   - StateComparator, which diffs desired against observed state
//   - ReconciliationController, which applies the diff idempotently
//   - ReconciliationError for structured error handling
//
// New kinds are added by implementing the Resource and ResourceManager
// interfaces and registering the manager with the controller.
package resource
