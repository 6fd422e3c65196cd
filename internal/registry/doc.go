// Package registry loads registry definitions: the description of one
// external data source together with the field mappings, unique keys and
// matching rule used to import it.
//
// Definitions may be written in CUE, YAML or JSON. All three are unified with
// the embedded #Registry schema, so a typo in a field name or an unknown key
// transform is rejected before any record is read.
package registry
