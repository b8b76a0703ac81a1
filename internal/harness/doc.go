// Package harness runs reference storage scenarios against a fresh
// in-memory store.
//
// A scenario installs a fixture registry, runs a list of steps (saves,
// joins, validations, shadow migrations) and asserts on the resulting
// rows. Each step is recorded in a trace that can be compared against a
// golden file.
//
// # Scenario Format
//
//	name: owner_join
//	description: "Forward join through a base reference field"
//	fixture: blog.yaml
//	entities:
//	  - {entity_type: user, id: 3, label: carol}
//	steps:
//	  - save:
//	      entity_type: node
//	      bundle: page
//	      refs:
//	        owner: [{target_type: user, target_id: 3}]
//	    expect: {id: "2"}
//	  - join: {from: node, field: owner, to: user}
//	    expect: {rows: 2}
//	  - validate: {entity_type: node, id: 2}
//	    expect: {violations: []}
//	assertions:
//	  - type: column_values
//	    table: node_field_data
//	    column: owner__target_id_int
//	    values: [1, 3]
//	  - type: final_state
//	    table: node__related
//	    where: {entity_id: 1, delta: 0}
//	    expect: {related_target_id: go}
//
// The fixture names a YAML fixture embedded in package testutil. Scenario
// entities are saved after the fixture's own.
//
// # Step Types
//
//   - save: creates an entity; an id in the record is kept
//   - update: loads an entity, replaces its label and the listed fields, saves it
//   - delete: removes an entity
//   - join: plans and runs a forward (or reverse) join through a field
//   - validate: validates every reference field of one stored entity
//   - migrate: reconciles shadow columns of one or every entity type
//
// A step without expect must succeed. expect.error makes a failure the
// expected outcome, matched by substring.
//
// # Assertion Types
//
//   - column_values: the values of one column ordered by order_by (default id)
//   - final_state: the single row matching where has the expected values
//
// Values are compared by their text form, so 3 matches the string "3"
// and null matches SQL NULL.
package harness
