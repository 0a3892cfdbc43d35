// Package models defines the core domain records for the ledger engine.
//
// # Records
//
//   - Person: a participant with a cached signed net balance
//   - Group: a named set of people plus the expenses they share
//   - GroupExpense: one shared expense, split equally between participants
//   - SplitBill: an itemized bill with per-participant amounts
//   - Transaction: the audit trail for every balance mutation
//   - Subscription: a recurring cost shared between people
//
// # Design Principles
//
//  1. **ID references only**: records reference each other by ID string,
//     never by pointer. Back-reference navigation is done via index lookups
//     in the validator, which keeps ownership acyclic.
//  2. **Store-owned records**: records are owned exclusively by the record
//     store and mutated only through the transaction manager. Code outside
//     storage works on clones.
//  3. **Exact money**: all amounts are decimal values held to two decimal
//     places. Splitting never loses a minor currency unit; remainders are
//     assigned deterministically.
//  4. **Append-only corrections**: GroupExpense and SplitBill rows are never
//     edited in place after creation. Settling flips flags; corrections are
//     modeled as delete + recreate so the audit trail stays truthful.
package models
