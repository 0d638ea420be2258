// Package harness runs address book scenarios and records their traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: delete_refreshes_collection
//	description: "Deleting a row redelivers the collection"
//	subscriptions:
//	  - name: all
//	    address: contacts
//	    sort: name ASC
//	steps:
//	  - op: insert
//	    address: contacts
//	    values: { name: Ada }
//	    expect: { id: 1 }
//	  - op: delete
//	    address: contacts/1
//	    expect: { rows: 1 }
//	  - op: query
//	    address: contacts
//	    sort: name ASC
//	    expect: { names: [] }
//	assertions:
//	  - type: delivery_count
//	    subscription: all
//	    count: 3
//	  - type: delivered
//	    subscription: all
//	    names: []
//	  - type: publish_order
//	    addresses: [contacts, contacts/1]
//	  - type: final_state
//	    address: contacts/1
//	    count: 0
//
// # Assertion Types
//
//   - delivery_count: a subscription received exactly Count results
//   - delivered: the latest result of a subscription has exactly Names, in order
//   - publish_order: the change events published, in order
//   - final_state: querying Address returns Count rows; Expect is matched
//     against the first row
//
// # Deterministic Traces
//
// Each scenario runs against a private in-memory database with sequential
// subscription tokens. After every step the harness waits until no
// subscription has a query queued or running, then records deliveries in
// subscription declaration order. The same scenario therefore always yields
// the same trace, which is compared against a golden file.
package harness
