// Package compiler turns registry definitions authored in CUE into
// model.EntityType and model.FieldStorage values.
//
// A definition file declares entity types keyed by id:
//
//	entity_type: node: {
//		label:               "Content"
//		id_kind:             "integer"
//		data_table:          "node_field_data"
//		revision_data_table: "node_field_revision"
//		revisionable:        true
//		bundles: ["article", "page"]
//		fields: owner: {
//			type:         "dynamic_entity_reference"
//			base:         true
//			revisionable: true
//			settings: {
//				exclude_entity_types: false
//				entity_type_ids: ["user"]
//			}
//		}
//	}
//
// Omitted keys take their defaults: id_kind "integer", sql_storage true,
// cardinality 1, and settings allowing every entity type.
package compiler
