// Package harness runs end-to-end engine scenarios written in YAML.
//
// A scenario names a registry definition, seeds the store, runs a flow of
// engine operations (classify, sync, match_one, match_all) and checks the
// outcome with assertions on the final store contents. Each run uses a fresh
// in-memory SQLite store, sequential document IDs and a fixed clock, so the
// trace and state snapshot of a scenario are byte-for-byte reproducible and
// can be compared with golden files.
//
// Scenario layout:
//
//	name: insert_only_skips_existing
//	description: existing entities are skipped, new ones inserted
//	definition: ../registries/test.yaml
//	setup:
//	  - collection: organizations
//	    documents:
//	      - {entityId: "5", entityName: A}
//	flow:
//	  - op: sync
//	    level: entities
//	    strategy: insert
//	    records:
//	      - {id: "5", name: A-updated}
//	    expect: {inserted: 0, skipped: 1}
//	assertions:
//	  - type: document
//	    collection: organizations
//	    where: {entityId: "5"}
//	    expect: {entityName: A}
//
// Setup documents are written as-is with the registry's registryID and
// registryName added. Flow records are raw source rows and go through the
// definition's field mapping.
package harness
