// Package formats provides parsers and writers for the PCLOD terrain file formats.
package formats

// Note: HCLM (terrain header + zone records) is implemented in hclm.go
// Note: TCLM (material manifest) is implemented in tclm.go
