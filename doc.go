// Package ruletree evaluates a declarative hierarchy of rule sets against a
// tabular record (a Product), producing a structured report of which rule
// sets passed, which attribute values failed, and what remediation the tree
// prescribes.
//
// Typical use is as follows:
//
//  1. Build a Catalog describing the attributes your records carry
//  2. Build a RuleSet tree, possibly with many child rule sets
//  3. Create an Engine around the tree, the catalog, and any sources
//  4. Use the engine to validate an incoming Product
//  5. Inspect the Report
//
// # Tree Ownership and Modification
//
// The calling application is responsible for managing the lifecycle of the
// tree, including ensuring concurrency safety. Specifically:
//
//  1. You must not modify the tree while a validation is in progress.
//  2. A rule set must not be a child of more than one parent.
//  3. The Product passed to Validate is owned by the engine for the
//     duration of the call; assignment rules write into it.
//
// The Catalog is read-only after construction and may be shared freely
// between engines, as may the tree itself once built. The TransactionGate
// is the only component that is deliberately mutable across validations;
// its confirmations are cleared after every Validate call, whether the
// call succeeded or not.
//
// If the tree must change while engines are evaluating it, use a Vault,
// which swaps complete trees atomically.
package ruletree
